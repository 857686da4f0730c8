package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindError
	kindAny
)

// Field is one structured key/value attached to a log entry.
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	flt  float64
	any  interface{}
}

func (f Field) apply(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.Key, f.str)
	case kindInt:
		e.Int64(f.Key, f.num)
	case kindFloat:
		e.Float64(f.Key, f.flt)
	case kindBool:
		e.Bool(f.Key, f.num != 0)
	case kindError:
		if err, _ := f.any.(error); err != nil {
			e.AnErr(f.Key, err)
		}
	default:
		e.Interface(f.Key, f.any)
	}
}

// Value returns the plain value, errors rendered as their message.
func (f Field) Value() interface{} {
	switch f.kind {
	case kindString:
		return f.str
	case kindInt:
		return f.num
	case kindFloat:
		return f.flt
	case kindBool:
		return f.num != 0
	case kindError:
		if err, _ := f.any.(error); err != nil {
			return err.Error()
		}
		return nil
	}
	return f.any
}

func String(key, value string) Field { return Field{Key: key, kind: kindString, str: value} }

func Strings(key string, value []string) Field { return String(key, strings.Join(value, ",")) }

func Int(key string, value int) Field { return Int64(key, int64(value)) }

func Int64(key string, value int64) Field { return Field{Key: key, kind: kindInt, num: value} }

func Float64(key string, value float64) Field { return Field{Key: key, kind: kindFloat, flt: value} }

func Bool(key string, value bool) Field {
	f := Field{Key: key, kind: kindBool}
	if value {
		f.num = 1
	}
	return f
}

// Duration logs d in milliseconds.
func Duration(key string, d time.Duration) Field { return Int64(key, d.Milliseconds()) }

func Error(err error) Field { return Field{Key: zerolog.ErrorFieldName, kind: kindError, any: err} }

func Any(key string, value interface{}) Field { return Field{Key: key, kind: kindAny, any: value} }
