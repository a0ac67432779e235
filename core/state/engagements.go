package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"smartescrow/native/escrow"
)

type storedResolver struct {
	Resolver             common.Address
	ResolutionRateBPS    uint32
	MaxResolutionRateBPS uint32
}

type storedArbitration struct {
	Arbitrator common.Address
	ExtraData  []byte
}

type storedEngagement struct {
	ID                  [32]byte
	Address             common.Address
	Nonce               uint64
	Client              common.Address
	Provider            common.Address
	ClientReceiver      common.Address
	ProviderReceiver    common.Address
	Token               common.Address
	Amounts             []*big.Int
	Milestone           uint64
	Released            *big.Int
	TerminationTime     *big.Int
	Details             string
	RequireVerification bool
	Verified            bool
	FeeBPS              uint32
	Treasury            common.Address
	Payout              uint8
	Resolution          uint8
	Resolver            storedResolver
	Arbitration         storedArbitration
	Locked              bool
	DisputeID           uint64
	HasDispute          bool
	RuledDisputes       []uint64
	CreatedAt           *big.Int
}

func newStoredEngagement(e *escrow.Engagement) *storedEngagement {
	clone := e.Clone()
	return &storedEngagement{
		ID:                  clone.ID,
		Address:             clone.Address,
		Nonce:               clone.Nonce,
		Client:              clone.Client,
		Provider:            clone.Provider,
		ClientReceiver:      clone.ClientReceiver,
		ProviderReceiver:    clone.ProviderReceiver,
		Token:               clone.Token,
		Amounts:             clone.Amounts,
		Milestone:           clone.Milestone,
		Released:            clone.Released,
		TerminationTime:     big.NewInt(clone.TerminationTime),
		Details:             clone.Details,
		RequireVerification: clone.RequireVerification,
		Verified:            clone.Verified,
		FeeBPS:              clone.FeeBPS,
		Treasury:            clone.Treasury,
		Payout:              uint8(clone.Payout),
		Resolution:          uint8(clone.Resolution),
		Resolver: storedResolver{
			Resolver:             clone.Resolver.Resolver,
			ResolutionRateBPS:    clone.Resolver.ResolutionRateBPS,
			MaxResolutionRateBPS: clone.Resolver.MaxResolutionRateBPS,
		},
		Arbitration: storedArbitration{
			Arbitrator: clone.Arbitration.Arbitrator,
			ExtraData:  clone.Arbitration.ExtraData,
		},
		Locked:        clone.Locked,
		DisputeID:     clone.DisputeID,
		HasDispute:    clone.HasDispute,
		RuledDisputes: clone.RuledDisputes,
		CreatedAt:     big.NewInt(clone.CreatedAt),
	}
}

func (s *storedEngagement) toEngagement() (*escrow.Engagement, error) {
	if s == nil {
		return nil, fmt.Errorf("escrow: nil storage record")
	}
	out := &escrow.Engagement{
		ID:                  s.ID,
		Address:             s.Address,
		Nonce:               s.Nonce,
		Client:              s.Client,
		Provider:            s.Provider,
		ClientReceiver:      s.ClientReceiver,
		ProviderReceiver:    s.ProviderReceiver,
		Token:               s.Token,
		Amounts:             s.Amounts,
		Milestone:           s.Milestone,
		Released:            s.Released,
		Details:             s.Details,
		RequireVerification: s.RequireVerification,
		Verified:            s.Verified,
		FeeBPS:              s.FeeBPS,
		Treasury:            s.Treasury,
		Payout:              escrow.PayoutModel(s.Payout),
		Resolution:          escrow.ResolutionKind(s.Resolution),
		Resolver: escrow.ResolverConfig{
			Resolver:             s.Resolver.Resolver,
			ResolutionRateBPS:    s.Resolver.ResolutionRateBPS,
			MaxResolutionRateBPS: s.Resolver.MaxResolutionRateBPS,
		},
		Arbitration: escrow.ArbitrationConfig{
			Arbitrator: s.Arbitration.Arbitrator,
		},
		Locked:     s.Locked,
		DisputeID:  s.DisputeID,
		HasDispute: s.HasDispute,
	}
	if len(s.Arbitration.ExtraData) > 0 {
		out.Arbitration.ExtraData = append([]byte(nil), s.Arbitration.ExtraData...)
	}
	if len(s.RuledDisputes) > 0 {
		out.RuledDisputes = append([]uint64(nil), s.RuledDisputes...)
	}
	if s.TerminationTime != nil {
		out.TerminationTime = s.TerminationTime.Int64()
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	return escrow.SanitizeEngagement(out)
}

// EngagementPut persists an engagement and records it in the index.
func (m *Manager) EngagementPut(e *escrow.Engagement) error {
	sanitized, err := escrow.SanitizeEngagement(e)
	if err != nil {
		return err
	}
	if err := m.KVPut(EngagementKey(sanitized.ID), newStoredEngagement(sanitized)); err != nil {
		return err
	}
	return m.KVAppend(EngagementIndexKey(), sanitized.ID[:])
}

// EngagementGet loads an engagement by id.
func (m *Manager) EngagementGet(id [32]byte) (*escrow.Engagement, bool, error) {
	var stored storedEngagement
	ok, err := m.KVGet(EngagementKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	eng, err := stored.toEngagement()
	if err != nil {
		return nil, false, err
	}
	return eng, true, nil
}

// EngagementIDs lists every stored engagement in insertion order.
func (m *Manager) EngagementIDs() ([][32]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(EngagementIndexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("state: malformed engagement index entry")
		}
		var id [32]byte
		copy(id[:], entry)
		out = append(out, id)
	}
	return out, nil
}

// ResolutionRatePut records the rate a resolver publishes.
func (m *Manager) ResolutionRatePut(resolver common.Address, rateBPS uint32) error {
	return m.KVPut(ResolutionRateKey(resolver), uint64(rateBPS))
}

// ResolutionRateGet loads the rate a resolver publishes.
func (m *Manager) ResolutionRateGet(resolver common.Address) (uint32, bool, error) {
	var rate uint64
	ok, err := m.KVGet(ResolutionRateKey(resolver), &rate)
	if err != nil || !ok {
		return 0, ok, err
	}
	if rate > escrow.BPSDenominator {
		return 0, false, fmt.Errorf("state: stored resolution rate %d out of range", rate)
	}
	return uint32(rate), true, nil
}
