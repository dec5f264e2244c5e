package engine

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// renderCell converts a scanned driver value to its display string.
// SQL NULL renders as "(null)" and binary values keep their size only,
// matching what the grid shows.
func renderCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "(null)"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case string:
		return val
	case []byte:
		return fmt.Sprintf("<blob %d bytes>", len(val))
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	case *big.Int:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
