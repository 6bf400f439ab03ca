package util

import "errors"

var (
	ErrEmailRegistered   = errors.New("该邮箱已被注册")
	ErrInvalidPassword   = errors.New("邮箱或密码错误")
	ErrInvalidDifficulty = errors.New("invalid difficulty level")
	ErrInvalidCognitive  = errors.New("invalid cognitive level")
	ErrEmptyQuestion     = errors.New("question must not be empty")
)
