package helpers

import "context"

// CurrentUser resolves a Telegram user ID to a domain entity via a service that
// implements FindByTelegramID. The generic type T allows callers to supply
// their own account model.
func CurrentUser[T any](
	ctx context.Context,
	service interface {
		FindByTelegramID(context.Context, int64) (T, error)
	},
	tgID int64,
) (T, error) {
	var zero T
	if service == nil {
		return zero, nil
	}
	return service.FindByTelegramID(ctx, tgID)
}
