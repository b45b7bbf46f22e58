package i18n

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/text/language"
)

const (
	TextCodeLanguageNotFound  = "LANGUAGE_NOT_FOUND"
	TextCodeDuplicateLanguage = "DUPLICATE_LANGUAGE"
	TextCodeInvalidLanguage   = "INVALID_LANGUAGE"
	TextCodeInvalidMessage    = "INVALID_TRANSLATION"

	DefaultLanguage = "en"
)

// Language is a language the site is translated to.
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
	RTL        bool   `json:"rtl"`
}

// Validate will run validation rules
func (l Language) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Code, validation.Required, validation.By(validTag)),
		validation.Field(&l.Name, validation.Required),
		validation.Field(&l.NativeName, validation.Required),
	)
}

func validTag(value any) error {
	code, _ := value.(string)
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("must be a BCP 47 language tag")
	}
	return nil
}

// ErrLanguageNotFound is returned for unknown language codes.
func ErrLanguageNotFound(code string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("language %q not found", code), goerrors.CategoryNotFound).
		WithTextCode(TextCodeLanguageNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"language": code,
		})
}

// Catalog holds the languages and their translations. Lookups fall back to
// the default language and then to the key itself.
type Catalog struct {
	mu        sync.RWMutex
	fallback  string
	languages []Language
	messages  map[string]map[string]string
	matcher   language.Matcher
}

// NewCatalog returns a catalog whose fallback language is fallback.
func NewCatalog(fallback Language) (*Catalog, error) {
	c := &Catalog{messages: map[string]map[string]string{}}
	if err := c.AddLanguage(fallback); err != nil {
		return nil, err
	}
	c.fallback = c.languages[0].Code
	return c, nil
}

// Default returns the fallback language code.
func (c *Catalog) Default() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallback
}

// AddLanguage registers l. Codes are stored in canonical form.
func (c *Catalog) AddLanguage(l Language) error {
	l.Code = strings.TrimSpace(l.Code)
	if err := l.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid language").
			WithTextCode(TextCodeInvalidLanguage).
			WithCode(goerrors.CodeBadRequest)
	}
	l.Code = language.Make(l.Code).String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.messages[l.Code]; ok {
		return goerrors.New(fmt.Sprintf("language %q already exists", l.Code), goerrors.CategoryConflict).
			WithTextCode(TextCodeDuplicateLanguage).
			WithCode(http.StatusConflict)
	}
	c.languages = append(c.languages, l)
	c.messages[l.Code] = map[string]string{}

	tags := make([]language.Tag, 0, len(c.languages))
	for _, lang := range c.languages {
		tags = append(tags, language.Make(lang.Code))
	}
	c.matcher = language.NewMatcher(tags)
	return nil
}

// Languages returns the registered languages, fallback first.
func (c *Catalog) Languages() []Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Language(nil), c.languages...)
}

// Has reports whether code is registered.
func (c *Catalog) Has(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.messages[code]
	return ok
}

// Set stores the translation of key in lang.
func (c *Catalog) Set(lang, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.TrimSpace(value) == "" {
		return goerrors.New("translation key and value are required", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidMessage).
			WithCode(goerrors.CodeBadRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.messages[lang]
	if !ok {
		return ErrLanguageNotFound(lang)
	}
	msgs[key] = value
	return nil
}

// SetAll stores every entry of msgs in lang.
func (c *Catalog) SetAll(lang string, msgs map[string]string) error {
	for key, value := range msgs {
		if err := c.Set(lang, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the translation of key stored for lang itself.
func (c *Catalog) Lookup(lang, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.messages[lang][key]
	return v, ok
}

// Translate returns key in lang, in the fallback language, or key itself.
func (c *Catalog) Translate(lang, key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.messages[lang][key]; ok {
		return v
	}
	if v, ok := c.messages[c.fallback][key]; ok {
		return v
	}
	return key
}

// Messages returns every fallback key resolved in lang.
func (c *Catalog) Messages(lang string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	own, ok := c.messages[lang]
	if !ok {
		return nil, ErrLanguageNotFound(lang)
	}
	out := make(map[string]string, len(c.messages[c.fallback]))
	for k, v := range c.messages[c.fallback] {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out, nil
}

// Keys returns the fallback language keys, sorted.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.messages[c.fallback]))
	for k := range c.messages[c.fallback] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Coverage is the percentage of fallback keys translated in lang.
func (c *Catalog) Coverage(lang string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	base := c.messages[c.fallback]
	if len(base) == 0 {
		return 100
	}
	own := c.messages[lang]
	n := 0
	for k := range base {
		if _, ok := own[k]; ok {
			n++
		}
	}
	return n * 100 / len(base)
}

// Match picks the registered language closest to the preferred tags. Each
// entry is either a single tag or an Accept-Language header value.
func (c *Catalog) Match(preferred ...string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var tags []language.Tag
	for _, p := range preferred {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return c.fallback
	}

	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return c.fallback
	}
	return c.languages[index].Code
}
