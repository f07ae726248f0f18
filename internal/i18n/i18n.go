// Package i18n holds the user-facing strings of the intake flows.
package i18n

import "strings"

const (
	// LangRU is the default language.
	LangRU = "ru"
	LangEN = "en"
)

// Texts is the string table of one language.
type Texts struct {
	Welcome        string
	ChooseAction   string
	ChooseLanguage string
	OrderButton    string
	TestButton     string
	OrderTask      string
	OrderContacts  string
	TestChannel    string
	TestContacts   string
	OrderSaved     string
	TestRegistered string
	WriteStart     string
	LangChanged    string
}

var tables = map[string]Texts{
	LangRU: {
		Welcome:        "Добро пожаловать!",
		ChooseAction:   "Выберите действие:",
		ChooseLanguage: "Выберите язык:",
		OrderButton:    "📝 Сделать заказ",
		TestButton:     "📋 Записаться на тесты",
		OrderTask:      "Опишите ваш заказ:",
		OrderContacts:  "Введите ваши контакты:",
		TestChannel:    "Введите ссылку на ваш канал:",
		TestContacts:   "Введите ваши контакты:",
		OrderSaved:     "✅ Заказ сохранён! Мы свяжемся с вами.",
		TestRegistered: "✅ Вы записаны на тесты!",
		WriteStart:     "Напишите /start",
		LangChanged:    "✅ Язык изменён!",
	},
	LangEN: {
		Welcome:        "Welcome!",
		ChooseAction:   "Choose an action:",
		ChooseLanguage: "Select language:",
		OrderButton:    "📝 Make order",
		TestButton:     "📋 Sign up for tests",
		OrderTask:      "Describe your order:",
		OrderContacts:  "Enter your contacts:",
		TestChannel:    "Enter your channel link:",
		TestContacts:   "Enter your contacts:",
		OrderSaved:     "✅ Order saved! We will contact you.",
		TestRegistered: "✅ You are signed up for tests!",
		WriteStart:     "Write /start",
		LangChanged:    "✅ Language changed!",
	},
}

// Normalize maps a stored or client language code to a supported language.
// Anything unknown, including the empty string, selects LangRU.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := tables[lang]; ok {
		return lang
	}
	return LangRU
}

// Supported reports whether lang names a language with its own table.
func Supported(lang string) bool {
	_, ok := tables[lang]
	return ok
}

// T returns the string table for lang.
func T(lang string) Texts {
	return tables[Normalize(lang)]
}

// Name returns the human-readable name of lang.
func Name(lang string) string {
	if Normalize(lang) == LangEN {
		return "English"
	}
	return "Русский"
}

// LanguagePrompt is shown before a language is chosen, so it carries every
// language at once.
func LanguagePrompt() string {
	return T(LangRU).ChooseLanguage + " / " + T(LangEN).ChooseLanguage
}
