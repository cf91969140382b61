package domain

import (
	"context"

	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
)

type Service interface {
	// SendReminder emails the tenant about an obligation. It reports false
	// without sending when the same reminder already went out today.
	SendReminder(ctx context.Context, obligation *obligationdomain.Obligation, template string) (bool, error)

	// NotifySettled emails a payment confirmation to the tenant and a
	// received notice to the landlord. Failures are logged, not returned,
	// so settlement never rolls back over email trouble.
	NotifySettled(ctx context.Context, obligation *obligationdomain.Obligation)
}
