package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps the "type" field of a log entry to the emoji prefixed to its message.
var emojiMap = map[string]string{
	"workflow":     "🧭",
	"step":         "👣",
	"circuit":      "🔌",
	"retry":        "🔁",
	"rate_limit":   "🚦",
	"provider":     "🛰️",
	"signer":       "✍️",
	"analyzer":     "🧠",
	"oracle":       "⛓️",
	"request":      "🌐",
	"success":      "✅",
	"error":        "❌",
	"warning":      "⚠️",
	"database":     "💾",
	"redis":        "📦",
	"scheduler":    "🎯",
	"startup":      "🚀",
	"security":     "🔒",
	"slow_request": "🐌",
}

// statusEmoji returns an emoji for an HTTP status code.
func statusEmoji(status int) string {
	if status >= 500 {
		return "🔴"
	} else if status >= 400 {
		return "🟠"
	} else if status >= 300 {
		return "🟡"
	}
	return "🟢"
}

// EmojiConsoleEncoder wraps the zap ConsoleEncoder and prefixes messages with an emoji.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
	config zapcore.EncoderConfig
}

func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		config:  cfg,
	}
}

// EncodeEntry picks the emoji from an integer "status" field first, then the
// "type" field, then the entry level.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var logType string
	var status int64

	for _, field := range fields {
		if field.Key == "type" && field.Type == zapcore.StringType {
			logType = field.String
		} else if field.Key == "status" && (field.Type == zapcore.Int64Type || field.Type == zapcore.Int32Type) {
			status = field.Integer
		}
	}

	emoji := ""
	if status > 0 {
		emoji = statusEmoji(int(status))
	} else if logType != "" {
		emoji = emojiMap[logType]
	}

	if emoji == "" {
		switch entry.Level {
		case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
			emoji = "❌"
		case zapcore.WarnLevel:
			emoji = "⚠️"
		case zapcore.InfoLevel:
			emoji = "ℹ️"
		case zapcore.DebugLevel:
			emoji = "🐛"
		}
	}

	if emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}

	return enc.Encoder.EncodeEntry(entry, fields)
}

func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: enc.Encoder.Clone(),
		config:  enc.config,
	}
}
