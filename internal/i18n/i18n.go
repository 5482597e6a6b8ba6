package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer resolves user-facing text by Telegram language code
type Localizer struct {
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer loads the embedded message files for the configured languages
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	langs := cfg.Languages
	if !contains(langs, cfg.DefaultLanguage) {
		langs = append([]string{cfg.DefaultLanguage}, langs...)
	}

	localizers := make(map[string]*i18n.Localizer, len(langs))
	for _, lang := range langs {
		if _, err := bundle.LoadMessageFileFS(locales, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		localizers[lang] = i18n.NewLocalizer(bundle, lang, cfg.DefaultLanguage)
	}

	return &Localizer{
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns the localized message, or the id when it is unknown.
// lang may be a full IETF tag such as "en-US".
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	msg, err := l.localizer(lang).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// Title formats a request type label such as "image_gen_flux" as "Image Gen Flux".
func (l *Localizer) Title(lang, label string) string {
	return cases.Title(l.tag(lang)).String(strings.ReplaceAll(label, "_", " "))
}

// Number formats n with the grouping separators of lang, e.g. 12,500 for English.
func (l *Localizer) Number(lang string, n int) string {
	return message.NewPrinter(l.tag(lang)).Sprintf("%d", n)
}

func (l *Localizer) tag(lang string) language.Tag {
	if tag, err := language.Parse(lang); err == nil {
		return tag
	}
	return language.Make(l.defaultLanguage)
}

func (l *Localizer) localizer(lang string) *i18n.Localizer {
	if loc, ok := l.localizers[lang]; ok {
		return loc
	}
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		if loc, ok := l.localizers[base.String()]; ok {
			return loc
		}
	}
	return l.localizers[l.defaultLanguage]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Message IDs
const (
	MsgWelcome                  = "welcome"
	MsgHelp                     = "help"
	MsgStatus                   = "status"
	MsgStatusOnline             = "status_online"
	MsgStatusOffline            = "status_offline"
	MsgStatusImages             = "status_images"
	MsgStats                    = "stats"
	MsgStatsNoRequests          = "stats_no_requests"
	MsgResetDone                = "reset_done"
	MsgSearchUsage              = "search_usage"
	MsgSearchResult             = "search_result"
	MsgSearchFailed             = "search_failed"
	MsgCodeUsage                = "code_usage"
	MsgCodeResult               = "code_result"
	MsgCodeFailed               = "code_failed"
	MsgImageUsage               = "image_usage"
	MsgImagePlaceholder         = "image_placeholder"
	MsgImageCaption             = "image_caption"
	MsgImageConcept             = "image_concept"
	MsgImageConceptSuggestion   = "image_concept_suggestion"
	MsgImageDisabledDescription = "image_disabled_description"
	MsgImageDisabledSuggestion  = "image_disabled_suggestion"
	MsgImageFailed              = "image_failed"
	MsgImageSendFailed          = "image_send_failed"
	MsgModelMenu                = "model_menu"
	MsgModelSet                 = "model_set"
	MsgModelSetToast            = "model_set_toast"
	MsgModelSetFailed           = "model_set_failed"
	MsgBackendDisabled          = "backend_disabled"
	MsgFeatureChat              = "feature_chat"
	MsgFeatureSearch            = "feature_search"
	MsgFeatureCode              = "feature_code"
	MsgFeatureVoice             = "feature_voice"
	MsgFeatureVision            = "feature_vision"
	MsgChatFailed               = "chat_failed"
	MsgVoiceUnclear             = "voice_unclear"
	MsgVoiceTranscribed         = "voice_transcribed"
	MsgVoiceFailed              = "voice_failed"
	MsgVisionResult             = "vision_result"
	MsgVisionFailed             = "vision_failed"
	MsgGenericError             = "generic_error"
	MsgRateLimited              = "rate_limited"
	MsgUnknownCommand           = "unknown_command"
	MsgPrimerChat               = "primer_chat"
	MsgPrimerImage              = "primer_image"
	MsgPrimerCode               = "primer_code"
	MsgPrimerSearch             = "primer_search"
	MsgToastChat                = "toast_chat"
	MsgToastImage               = "toast_image"
	MsgToastCode                = "toast_code"
	MsgToastSearch              = "toast_search"
	MsgBtnChat                  = "btn_chat"
	MsgBtnDraw                  = "btn_draw"
	MsgBtnCode                  = "btn_code"
	MsgBtnSearch                = "btn_search"
)
