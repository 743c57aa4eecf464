package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如 OCR 未识别出文本但流程可继续）
// - 5xxx：系统错误（需要中断流程）
const (
	OK                   = 0
	NoTextRecognized     = 4001
	ResourceMissing      = 4004
	ExternalServiceError = 5002
	SystemError          = 5000
)
