package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

const (
	maxSlugLength   = 40
	maxReserveTries = 50
)

// SubdomainClaimer is the reverse index of subdomain ownership.
type SubdomainClaimer interface {
	ClaimSubdomain(ctx context.Context, subdomain, businessID string) (bool, error)
	ReleaseSubdomain(ctx context.Context, subdomain, businessID string) error
}

// DeriveSubdomain builds the default subdomain: the slugified business name
// cut to 40 characters, a dash and the first four characters of the id.
func DeriveSubdomain(businessName, businessID string) string {
	base := slug.Make(businessName)
	if len(base) > maxSlugLength {
		base = base[:maxSlugLength]
	}
	base = strings.Trim(base, "-")
	if base == "" {
		base = "site"
	}
	id := strings.ToLower(strings.ReplaceAll(businessID, "-", ""))
	if len(id) > 4 {
		id = id[:4]
	}
	if id == "" {
		return base
	}
	return base + "-" + id
}

// ReserveSubdomain claims the derived subdomain for businessID, appending a
// counter while another business holds the name.
func ReserveSubdomain(ctx context.Context, claimer SubdomainClaimer, businessName, businessID string) (string, error) {
	base := DeriveSubdomain(businessName, businessID)
	candidate := base
	for i := 2; i < maxReserveTries+2; i++ {
		ok, err := claimer.ClaimSubdomain(ctx, candidate, businessID)
		if err != nil {
			return "", fmt.Errorf("claim %s: %w", candidate, err)
		}
		if ok {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free subdomain for %s after %d tries", base, maxReserveTries)
}

// SuffixedVariants lists original-1 through original-n.
func SuffixedVariants(original string, n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("%s-%d", original, i))
	}
	return out
}
