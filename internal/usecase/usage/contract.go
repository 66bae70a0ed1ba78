package usage

import "github.com/kotoba-cloud/lingorelay/internal/usecase/quota"

// QuotaReader provides read-only access to the metered provider's ledger.
type QuotaReader interface {
	Used() int64
	Limit() int64
	Remaining() int64
	Snapshot() quota.State
}
