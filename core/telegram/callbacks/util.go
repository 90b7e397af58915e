package callbacks

import "strconv"

// TargetInt64 parses the payload target as int64.
func (p Payload) TargetInt64() (int64, error) {
	return strconv.ParseInt(p.Target, 10, 64)
}
