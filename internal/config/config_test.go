package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_OP_TIMEOUT", "")
	t.Setenv("NOTIFY_RATE", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, 5*time.Second, cfg.DBOpTimeout)
	assert.Equal(t, float64(25), cfg.NotifyRate)
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
}

func TestDSNForMySQL(t *testing.T) {
	cfg := &Config{DBDriver: "mysql", DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "bot"}
	assert.Equal(t, "u:p@tcp(h:3306)/bot?parseTime=true&clientFoundRows=true", cfg.DSN())

	cfg.DBDSN = "explicit"
	assert.Equal(t, "explicit", cfg.DSN())
}

func TestSetupLoggingWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	SetupLogging(&Config{LogFormat: "json", LogLevel: "debug", LogFile: path})
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	})

	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	logrus.WithField("k", "v").Info("hello")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"hello"`)
}
