package ragfair

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// OfferBook is the host's store of player offers.
type OfferBook interface {
	ProfileOffers(ctx context.Context, sessionID string) []Offer
	PopSellResult(ctx context.Context, sessionID, offerID string) (SellResult, bool)
	// CompleteOffer settles boughtAmount units of the offer and returns the
	// offer as it was before settlement. The offer may be removed.
	CompleteOffer(ctx context.Context, sessionID, offerID string, boughtAmount int) (Offer, error)
}

// ProfileSource enumerates player profiles and credits flea rating.
type ProfileSource interface {
	Profiles(ctx context.Context) []Profile
	AddRating(ctx context.Context, sessionID string, delta float64)
}

// MemoryBook is an in-process OfferBook and ProfileSource. The hook API
// keeps the host's offers mirrored here between calls.
type MemoryBook struct {
	mu       sync.Mutex
	offers   map[string][]*Offer
	profiles map[string]*Profile
}

var (
	_ OfferBook     = (*MemoryBook)(nil)
	_ ProfileSource = (*MemoryBook)(nil)
)

// NewMemoryBook returns an empty book.
func NewMemoryBook() *MemoryBook {
	return &MemoryBook{
		offers:   make(map[string][]*Offer),
		profiles: make(map[string]*Profile),
	}
}

// PutProfile inserts or replaces a profile. The stored rating is kept when
// the incoming one is zero.
func (b *MemoryBook) PutProfile(p Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.profiles[p.SessionID]; ok && p.Rating == 0 {
		p.Rating = old.Rating
	}
	b.profiles[p.SessionID] = &p
}

// Profile returns a copy of one profile.
func (b *MemoryBook) Profile(sessionID string) (Profile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[sessionID]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// PutOffer inserts or replaces an offer owned by sessionID.
func (b *MemoryBook) PutOffer(sessionID string, offer Offer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.offers[sessionID]
	for i, o := range list {
		if o.ID == offer.ID {
			list[i] = offer.clone()
			return
		}
	}
	b.offers[sessionID] = append(list, offer.clone())
}

// ProfileOffers returns copies of the offers owned by sessionID.
func (b *MemoryBook) ProfileOffers(_ context.Context, sessionID string) []Offer {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.offers[sessionID]
	out := make([]Offer, 0, len(list))
	for _, o := range list {
		out = append(out, *o.clone())
	}
	return out
}

// PopSellResult removes and returns the first sell result of an offer.
func (b *MemoryBook) PopSellResult(_ context.Context, sessionID, offerID string) (SellResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, _ := b.find(sessionID, offerID)
	if o == nil || len(o.SellResults) == 0 {
		return SellResult{}, false
	}
	first := o.SellResults[0]
	o.SellResults = o.SellResults[1:]
	return first, true
}

// CompleteOffer deducts boughtAmount from the root item's stack and drops
// the offer once it is sold out or was sold in one piece.
func (b *MemoryBook) CompleteOffer(_ context.Context, sessionID, offerID string, boughtAmount int) (Offer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, idx := b.find(sessionID, offerID)
	if o == nil {
		return Offer{}, fmt.Errorf("complete offer %s: %w", offerID, ErrOfferNotFound)
	}
	before := *o.clone()

	remaining := 0.0
	if !o.SellInOnePiece && len(o.Items) > 0 {
		remaining = o.Items[0].StackCount() - float64(boughtAmount)
	}
	if remaining <= 0 {
		list := b.offers[sessionID]
		b.offers[sessionID] = append(list[:idx], list[idx+1:]...)
		return before, nil
	}

	root := o.Items[0]
	upd := Upd{}
	if root.Upd != nil {
		upd = *root.Upd
	}
	upd.StackObjectsCount = &remaining
	root.Upd = &upd
	o.Items[0] = root
	return before, nil
}

// AddRating credits flea rating to a profile; unknown sessions are ignored.
func (b *MemoryBook) AddRating(_ context.Context, sessionID string, delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.profiles[sessionID]; ok {
		p.Rating += delta
	}
}

// Profiles returns every profile ordered by session id.
func (b *MemoryBook) Profiles(_ context.Context) []Profile {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Profile, 0, len(b.profiles))
	for _, p := range b.profiles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (b *MemoryBook) find(sessionID, offerID string) (*Offer, int) {
	for i, o := range b.offers[sessionID] {
		if o.ID == offerID {
			return o, i
		}
	}
	return nil, -1
}
