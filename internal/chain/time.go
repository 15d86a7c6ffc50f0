package chain

import "time"

func timeFromUnix(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
