package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	CombinedFile = "combined.log"
	ErrorFile    = "error.log"
)

// New builds the process logger. Every entry goes to stdout and LOG_DIR/combined.log;
// error and above is also written to LOG_DIR/error.log. Both files rotate at 5 MB.
func New(level, dir string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if dir == "" {
		log.SetOutput(os.Stdout)
		return log
	}
	_ = os.MkdirAll(dir, 0o755)

	combined := &lumberjack.Logger{
		Filename:   filepath.Join(dir, CombinedFile),
		MaxSize:    5,
		MaxBackups: 5,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, combined))
	log.AddHook(&errorFileHook{
		w: &lumberjack.Logger{
			Filename:   filepath.Join(dir, ErrorFile),
			MaxSize:    5,
			MaxBackups: 5,
		},
		formatter: log.Formatter,
	})
	return log
}

// Component tags every entry with the emitting component.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}

type errorFileHook struct {
	w         io.Writer
	formatter logrus.Formatter
}

func (h *errorFileHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *errorFileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}
