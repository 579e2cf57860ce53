package integration

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/metered-finance/internal/models"
)

var keySeq atomic.Int64

// TestKeyID generates a unique key id per call
func TestKeyID(suffix string) string {
	return fmt.Sprintf("key_it_%d_%d_%s", time.Now().Unix(), keySeq.Add(1), suffix)
}

// TestLimits builds a limits triple
func TestLimits(perMinute, daily, monthly int) models.QuotaLimits {
	return models.QuotaLimits{
		RateLimitPerMinute: perMinute,
		DailyQuota:         daily,
		MonthlyQuota:       monthly,
	}
}
