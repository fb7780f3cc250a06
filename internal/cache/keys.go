package cache

import "fmt"

func ProgressKey(requestID string) string {
	return fmt.Sprintf("progress:%s", requestID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
