package store

import "errors"

// 存储层错误分类。调用方通过 errors.Is 判定，HTTP 层据此映射状态码。
var (
	// ErrAlreadyExists 表示唯一键冲突（重复的用户名或课程名）。
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound 表示课程/周次/笔记等目标不存在。
	// 对笔记与图片而言，"不存在"是正常的空状态，不是故障。
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials 统一表示登录失败。
	// 不区分"用户不存在"与"密码错误"，避免用户名枚举。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStorage 表示对象存储或磁盘层面的读写故障，与空状态相区分。
	ErrStorage = errors.New("storage failure")
)
