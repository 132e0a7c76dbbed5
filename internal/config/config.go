package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Host         string
	Port         int
	AllowOrigins []string
	LogLevel     string
	MaxUploadMB  int
	LogFile      string
	PreviewRows  int    // строк в превью, пока грузится весь лист
	BatchSize    int    // строк на страницу таблицы
	MatchWorkers int    // одновременных задач сопоставления
	StateFile    string // где хранится last_opened_file
	MySQLDSN     string // DSN по умолчанию для экспорта
	ExportDir    string // каталог для sqlite-файлов экспорта через API
}

func Load() Config {
	// по умолчанию CORS закрыт; "*" включается только явно
	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOW_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Host:         getenv("HOST", "127.0.0.1"),
		Port:         atoi(getenv("PORT", "8082"), 8082),
		AllowOrigins: origins,
		LogLevel:     getenv("LOG_LEVEL", "info"),
		MaxUploadMB:  atoi(getenv("MAX_UPLOAD_MB", "256"), 256),
		LogFile:      getenv("LOG_FILE", "logs/colmatch.log"),
		PreviewRows:  atoi(getenv("PREVIEW_ROWS", "20"), 20),
		BatchSize:    atoi(getenv("BATCH_SIZE", "500"), 500),
		MatchWorkers: atoi(getenv("MATCH_WORKERS", "2"), 2),
		StateFile:    getenv("STATE_FILE", defaultStateFile()),
		MySQLDSN:     os.Getenv("MYSQL_DSN"),
		ExportDir:    getenv("EXPORT_DIR", "exports"),
	}
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "colmatch-state.toml"
	}
	return filepath.Join(dir, "colmatch", "state.toml")
}
