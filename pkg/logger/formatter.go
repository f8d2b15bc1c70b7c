package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type CustomJSONFormatter struct {
	TimestampFormat string
	PrettyPrint     bool
	AppName         string
	Version         string
}

type CustomTextFormatter struct {
	TimestampFormat string
	ForceColors     bool
	DisableColors   bool
	AppName         string
	Version         string
}

// reservedKeys are written by the formatters themselves. A field with the
// same name is kept under "fields.<name>".
var reservedKeys = map[string]bool{
	"timestamp": true,
	"level":     true,
	"message":   true,
	"app":       true,
	"version":   true,
	"caller":    true,
	"function":  true,
}

func (f *CustomJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}

	data := make(map[string]interface{}, len(entry.Data)+6)
	for k, v := range entry.Data {
		if reservedKeys[k] {
			k = "fields." + k
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}

	data["timestamp"] = entry.Time.Format(timestampFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if f.AppName != "" {
		data["app"] = f.AppName
	}
	if f.Version != "" {
		data["version"] = f.Version
	}
	if entry.HasCaller() {
		data["caller"] = fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
		data["function"] = entry.Caller.Function
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}
	encoder := json.NewEncoder(b)
	if f.PrettyPrint {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to marshal fields to JSON: %w", err)
	}
	return b.Bytes(), nil
}

const colorReset = "\033[0m"

func levelColor(level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "\033[31m"
	case logrus.WarnLevel:
		return "\033[33m"
	case logrus.InfoLevel:
		return "\033[36m"
	default:
		return "\033[37m"
	}
}

// Format writes "<time> LEVEL [app] message k=v ..." with fields sorted by
// key. Values containing spaces or quotes are quoted.
func (f *CustomTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = "2006-01-02 15:04:05"
	}
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')

	level := strings.ToUpper(entry.Level.String())
	if f.colored(entry) {
		fmt.Fprintf(b, "%s%-7s%s", levelColor(entry.Level), level, colorReset)
	} else {
		fmt.Fprintf(b, "%-7s", level)
	}

	if f.AppName != "" {
		fmt.Fprintf(b, " [%s]", f.AppName)
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, " [%s:%d]", entry.Caller.File, entry.Caller.Line)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%s", k, textValue(entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *CustomTextFormatter) colored(entry *logrus.Entry) bool {
	if f.DisableColors {
		return false
	}
	return f.ForceColors || (entry.Logger != nil && isTerminal(entry.Logger.Out))
}

func textValue(v interface{}) string {
	var s string
	switch value := v.(type) {
	case error:
		s = value.Error()
	case string:
		s = value
	default:
		s = fmt.Sprint(value)
	}
	if strings.ContainsAny(s, " \"=") {
		return strconv.Quote(s)
	}
	return s
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// AuditLogger writes one JSON entry per committed mutation, whatever format
// the application log uses.
type AuditLogger struct {
	logger *Logger
}

func NewAuditLogger(config *Config) (*AuditLogger, error) {
	auditConfig := *config
	auditConfig.Format = "json"

	logger, err := NewLogger(&auditConfig)
	if err != nil {
		return nil, err
	}
	return &AuditLogger{logger: logger}, nil
}

func (a *AuditLogger) LogDataAccess(table, operation, txID, recordID string, sensitive bool) {
	a.logger.WithFields(map[string]interface{}{
		"table":     table,
		"operation": operation,
		"tx_id":     txID,
		"record_id": recordID,
		"sensitive": sensitive,
		"type":      "data_access",
	}).Info("Data access logged")
}

// SetOutput redirects audit entries, mainly for tests.
func (a *AuditLogger) SetOutput(output io.Writer) {
	a.logger.SetOutput(output)
}
