package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Gruvbox Dark palette (warm, muted, easy on eyes)
const (
	colorFg     = "\x1b[38;5;223m" // Soft cream
	colorAqua   = "\x1b[38;5;108m" // Muted cyan-green - timestamps
	colorBlue   = "\x1b[38;5;109m" // Soft blue - page titles, IDs
	colorGreen  = "\x1b[38;5;142m" // Muted green - numbers
	colorOrange = "\x1b[38;5;208m" // Warm orange - components
	colorYellow = "\x1b[38;5;214m" // Soft yellow - warnings
	colorRed    = "\x1b[38;5;167m" // Warm red - errors
	bgYellow    = "\x1b[48;5;58m"
	bgRed       = "\x1b[48;5;88m"
)

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35  engine  page edited  Liste der Seen  1204ms"
type minimalEncoder struct {
	zapcore.Encoder // Embedded base encoder for field serialization
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString(colorAqua)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level is only shown for WARN and above
	if ent.Level != zapcore.InfoLevel && ent.Level != zapcore.DebugLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorOrange)
		final.AppendString(ent.LoggerName)
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorFg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if s := renderFields(fields); s != "" {
		final.AppendString("  ")
		final.AppendString(s)
	}

	final.AppendString("\n")
	return final, nil
}

func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + bgYellow + colorYellow + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + bgRed + colorRed + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + bgRed + colorRed + level.CapitalString() + colorReset
	default:
		return ""
	}
}

func fieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		if field.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.DurationType:
		return fmt.Sprintf("%dms", field.Integer/1e6)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return err.Error()
		}
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

// renderFields pulls values out of structured fields with domain-aware
// colors: page titles and identifiers in blue, counts in green, errors red.
func renderFields(fields []zapcore.Field) string {
	var values []string
	for _, field := range fields {
		val := fieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case "page", "entity", "job", "wiki":
			values = append(values, colorBlue+val+colorReset)
		case "rows", "entities", "attempts", "edited", "failed", "skipped", "unchanged", "processed":
			values = append(values, colorFg+field.Key+"="+colorReset+colorGreen+val+colorReset)
		case "error":
			values = append(values, colorRed+val+colorReset)
		default:
			values = append(values, colorFg+field.Key+"="+val+colorReset)
		}
	}
	return strings.Join(values, " ")
}
