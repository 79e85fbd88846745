// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки валидации цели отзыва
var (
	// ErrBadUsername — строка не похожа на @username
	ErrBadUsername = errors.New("нужен корректный @username")
	// ErrTargetIsBot — отзывы о ботах запрещены
	ErrTargetIsBot = errors.New("нельзя оставлять отзывы о ботах")
	// ErrTargetIsGroup — отзывы о групповых чатах запрещены
	ErrTargetIsGroup = errors.New("нельзя оставлять отзывы о чатах")
	// ErrTargetIsChannel — отзывы о каналах запрещены
	ErrTargetIsChannel = errors.New("нельзя оставлять отзывы о каналах")
)

// Ошибки заметки профиля
var (
	// ErrNoteTooLong — заметка длиннее 90 символов
	ErrNoteTooLong = errors.New("максимум 90 символов")
	// ErrNoteHasLink — в заметке обнаружена ссылка
	ErrNoteHasLink = errors.New("ссылки в описании запрещены")
)

// Ошибки пользователей
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrNoUsername — у пользователя нет @username в Telegram профиле
	ErrNoUsername = errors.New("укажи @username в Telegram профиле")
)
