package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// ReadLogTail читает последние limit записей JSON лога и форматирует их в строки.
// Отсутствующий файл не считается ошибкой.
func ReadLogTail(path string, limit int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > limit {
			logs = logs[1:]
		}
	}
	return logs, scanner.Err()
}

func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)
	level = ansiRegex.ReplaceAllString(level, "")

	timestamp := ""
	if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "level", "ts", "msg", "caller":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", timestamp, level, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " (%s: %v)", k, entry[k])
	}
	return b.String()
}
