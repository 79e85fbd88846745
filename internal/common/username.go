// Package common содержит общие утилиты, используемые во всём проекте.
// username.go — единственная точка нормализации @username: всё, что
// попадает в систему как цель отзыва, проходит через NormalizeUsername.
package common

import (
	"regexp"
	"strings"
)

// usernameRe — допустимый формат: @ + 3-32 символа [A-Za-z0-9_].
var usernameRe = regexp.MustCompile(`^@([A-Za-z0-9_]{3,32})$`)

// NormalizeUsername приводит строку к каноничному виду "@lowercase".
// Возвращает пустую строку, если формат некорректен.
//
// Примеры:
//
//	NormalizeUsername(" @Ivan_Petrov ") → "@ivan_petrov"
//	NormalizeUsername("ivan")           → ""
//	NormalizeUsername("@ab")            → ""
func NormalizeUsername(raw string) string {
	raw = strings.TrimSpace(raw)
	m := usernameRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return "@" + strings.ToLower(m[1])
}

// StripAt убирает ведущий @ и приводит к нижнему регистру.
// Для мест, где нужен "голый" username (ссылки, ref-параметры).
func StripAt(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}
