package service

import (
	"context"
	"errors"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// ApprovalService generalizes the teacher's console ApprovalService
// (GetApproval/GetApprovals/DecideApproval over an ApprovalRequest) to
// spec.md's AccessRequest human-in-the-loop flow. Approving a request
// mints the credential that PolicyEngine withheld at evaluation time;
// rejecting just resolves the row.
type ApprovalService struct {
	store       store.Store
	credentials *credential.Vendor
	clock       clock.Clock
	defaultLife int
}

func NewApprovalService(s store.Store, cv *credential.Vendor, c clock.Clock, defaultLifetimeSeconds int) *ApprovalService {
	return &ApprovalService{store: s, credentials: cv, clock: c, defaultLife: defaultLifetimeSeconds}
}

func (s *ApprovalService) Get(ctx context.Context, requestID string) (*domain.AccessRequest, error) {
	return s.store.GetAccessRequest(ctx, requestID)
}

func (s *ApprovalService) ListPending(ctx context.Context) ([]*domain.AccessRequest, error) {
	return s.store.ListPendingAccessRequests(ctx)
}

// Decide resolves a PENDING request. On approve, it re-evaluates the
// matched policy's scope/lifetime bounds and issues a credential; on
// reject, the request is simply marked REJECTED.
func (s *ApprovalService) Decide(ctx context.Context, requestID string, approve bool, reviewerID string) error {
	req, err := s.store.GetAccessRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.RequestPending {
		return errors.New("adminapi: access request already resolved")
	}

	now := s.clock.Now()
	status := domain.RequestRejected
	if approve {
		status = domain.RequestApproved
	}
	if err := s.store.ResolveAccessRequest(ctx, requestID, status, reviewerID, now); err != nil {
		return err
	}
	if !approve {
		return nil
	}

	policyID := ""
	if req.MatchedPolicyID != nil {
		policyID = *req.MatchedPolicyID
	}
	lifetime := s.defaultLife
	scopes := req.RequestedScopes
	if policyID != "" {
		if p, perr := s.store.GetPolicy(ctx, policyID); perr == nil {
			if p.Rules.MaxCredentialLifetimeSec > 0 {
				lifetime = p.Rules.MaxCredentialLifetimeSec
			}
			allowed := make(map[string]bool, len(p.AllowedScopes))
			for _, sc := range p.AllowedScopes {
				allowed[sc] = true
			}
			scopes = nil
			for _, sc := range req.RequestedScopes {
				if allowed[sc] {
					scopes = append(scopes, sc)
				}
			}
		}
	}

	_, _, _, err = s.credentials.Issue(ctx, req.AgentID, req.ToolID, scopes, lifetime, policyID, &requestID)
	return err
}
