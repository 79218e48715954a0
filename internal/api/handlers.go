package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type handler struct {
	store   storage.SignalStore
	journal storage.Journal
}

func (h *handler) register(e *echo.Echo) {
	e.GET("/health", h.health)
	e.GET("/signals", h.list)
	e.GET("/signals/stats", h.stats)
	e.GET("/signals/:id", h.get)
}

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) list(c echo.Context) error {
	q, err := parseQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	signals, err := h.store.Query(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if signals == nil {
		signals = []models.PersistedSignal{}
	}
	return c.JSON(http.StatusOK, signals)
}

func (h *handler) get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return badRequest(c, "неверный id")
	}

	sig, err := h.store.Get(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "сигнал не найден"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sig)
}

type statsResponse struct {
	storage.Stats
	WinRate float64 `json:"win_rate"`
	// Исходы из журнала за период since, если журнал включен
	Journal map[models.Status]int `json:"journal,omitempty"`
}

func (h *handler) stats(c echo.Context) error {
	ctx := c.Request().Context()
	st, err := h.store.Stats(ctx)
	if err != nil {
		return err
	}
	resp := statsResponse{Stats: st, WinRate: st.WinRate()}

	if v := c.QueryParam("since"); v != "" {
		since, err := time.ParseDuration(v)
		if err != nil || since <= 0 {
			return badRequest(c, "неверный параметр since")
		}
		counts, err := h.journal.OutcomeCounts(ctx, since)
		if err != nil {
			return err
		}
		resp.Journal = counts
	}
	return c.JSON(http.StatusOK, resp)
}

// parseQuery разбирает фильтры: symbol, type, strength, strategy, status (список через запятую, none - без статуса), sent, since, limit
func parseQuery(c echo.Context) (storage.SignalQuery, error) {
	q := storage.SignalQuery{
		Symbol:   strings.ToUpper(c.QueryParam("symbol")),
		Strategy: c.QueryParam("strategy"),
		Limit:    defaultLimit,
	}

	if v := c.QueryParam("type"); v != "" {
		t, err := models.ParseSignalType(v)
		if err != nil {
			return q, err
		}
		q.Type = t
	}
	if v := c.QueryParam("strength"); v != "" {
		s, err := models.ParseStrength(v)
		if err != nil {
			return q, err
		}
		q.Strength = s
	}
	if v := c.QueryParam("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if strings.EqualFold(part, "none") {
				q.Statuses = append(q.Statuses, models.StatusNone)
				continue
			}
			st, err := models.ParseStatus(part)
			if err != nil {
				return q, err
			}
			q.Statuses = append(q.Statuses, st)
		}
	}
	if v := c.QueryParam("sent"); v != "" {
		sent, err := strconv.ParseBool(v)
		if err != nil {
			return q, errors.New("неверный параметр sent")
		}
		q.SentOnly = sent
	}
	if v := c.QueryParam("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return q, errors.New("неверный параметр since")
		}
		q.CreatedSince = time.Now().Add(-d)
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, errors.New("неверный параметр limit")
		}
		q.Limit = min(n, maxLimit)
	}
	return q, nil
}
