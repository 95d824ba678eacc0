package pharmacy

import "context"

// RepositoryPort abstracts persistence for the resolver.
type RepositoryPort interface {
	FindOrCreate(ctx context.Context, name, number string) (Pharmacy, error)
}

// Service resolves chain identifiers to pharmacy rows.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Resolve validates the chain identifier and returns the owning pharmacy,
// creating it on first appearance. An unrecognized chain fails the run
// before any parsing happens.
func (s *Service) Resolve(ctx context.Context, chain, number string) (Pharmacy, error) {
	name, err := CanonicalChainName(chain)
	if err != nil {
		return Pharmacy{}, err
	}
	return s.repo.FindOrCreate(ctx, name, number)
}
