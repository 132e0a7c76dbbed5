package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"colmatch-service/internal/colmatch/model"
	"colmatch-service/internal/colmatch/service"
	"colmatch-service/internal/dataset"
	"colmatch-service/internal/export"
	"colmatch-service/internal/fileio"
	"colmatch-service/internal/worker"
	"colmatch-service/internal/workspace"
)

// ошибки ввода, которые не относятся ни к одному пакету
var (
	errBadRequest = errors.New("bad request")
	errMediaType  = errors.New("unsupported media type")
)

func badRequest(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), errBadRequest)
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// нормализуем имя колонки: нижний регистр, убираем служ.символы/множественные пробелы/ё→е
func normHeaderKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("\u00A0", " ", "\u202F", " ", "ё", "е").Replace(s) // NBSP/NNBSP
	s = nonWord.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// resolveColumn ищет реальное имя колонки по тому, что прислал клиент:
// сначала точное совпадение, затем по нормализованному имени.
// Если ничего не нашлось, имя возвращается как есть, и матчер вернёт
// ошибку с подсказкой.
func resolveColumn(columns []string, want string) string {
	want = strings.TrimSpace(want)
	for _, c := range columns {
		if c == want {
			return c
		}
	}
	n := normHeaderKey(want)
	if n == "" {
		return want
	}
	for _, c := range columns {
		if normHeaderKey(c) == n {
			return c
		}
	}
	return want
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}

func toBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}


func decodeJSON(r *http.Request, v any) error {
	// только application/json: такие запросы браузер не шлёт с чужого сайта без preflight
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return errors.Mark(errors.Newf("content type must be application/json, got %q", r.Header.Get("Content-Type")), errMediaType)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "bad json body"), errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusFor переводит ошибки доменных пакетов в HTTP-коды.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, dataset.ErrColumnNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, worker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrNotReady), errors.Is(err, workspace.ErrLoadFailed), errors.Is(err, workspace.ErrVersionConflict),
		errors.Is(err, export.ErrTableExists):
		return http.StatusConflict
	case errors.Is(err, errBadRequest), errors.Is(err, service.ErrUnknownScorer),
		errors.Is(err, fileio.ErrUnsupported), errors.Is(err, export.ErrUnknownDialect),
		errors.Is(err, export.ErrInvalidIdentifier), errors.Is(err, export.ErrNoColumns):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) model.Error {
	return model.Error{
		Error: err.Error(),
		Hint:  strings.Join(errors.GetAllHints(err), "; "),
	}
}
