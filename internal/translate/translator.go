package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// Text shorter than this is too ambiguous for language detection, so it is
// always sent to the remote service.
const minDetectRunes = 20

// Translator wraps the remote translation service for one fixed
// source/target language pair. Safe for concurrent use.
type Translator struct {
	baseURL    string
	apiKey     string
	source     string
	target     string
	httpClient *http.Client
}

func NewTranslator(baseURL, apiKey, source, target string, timeout time.Duration) *Translator {
	return &Translator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		source:  source,
		target:  target,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Text translates one string. Empty or whitespace-only input is passed
// through untouched. Input that is confidently already in the target
// language is also passed through, which keeps re-runs from burning quota.
func (t *Translator) Text(ctx context.Context, s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return s, nil
	}
	if t.alreadyTarget(s) {
		return s, nil
	}

	body := map[string]string{
		"q":      s,
		"source": t.source,
		"target": t.target,
		"format": "text",
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode translate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/language/translate/v2?key=%s", t.baseURL, t.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("translate: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if len(payload.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty response for %q", s)
	}
	return payload.Data.Translations[0].TranslatedText, nil
}

// Tags translates a comma-separated tag list element by element, preserving
// the list shape.
func (t *Translator) Tags(ctx context.Context, csv string) (string, error) {
	if strings.TrimSpace(csv) == "" {
		return csv, nil
	}

	parts := strings.Split(csv, ",")
	translated := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		out, err := t.Text(ctx, tag)
		if err != nil {
			return "", fmt.Errorf("translate tag %q: %w", tag, err)
		}
		translated = append(translated, out)
	}
	return strings.Join(translated, ", "), nil
}

func (t *Translator) alreadyTarget(s string) bool {
	if utf8.RuneCountInString(s) < minDetectRunes {
		return false
	}
	info := whatlanggo.Detect(s)
	return info.IsReliable() && info.Lang.Iso6391() == t.target
}

// ConvertPrice applies the exchange rate and markup, rounding to the nearest
// whole unit of the target currency.
func ConvertPrice(price, rate, markupPercent float64) float64 {
	return math.Round(price * rate * (1 + markupPercent/100))
}
