package ragfair

import "errors"

// Rejection returned to the client when a non-FIR item is listed while the
// FIR gate is on.
const (
	CodeRagfairUnavailable = 228
	MessageOnlyFIR         = "Only FIR items available on flea"
)

// ErrOfferNotFound is returned when an offer id is unknown to the book.
var ErrOfferNotFound = errors.New("offer not found")

// Upd carries the mutable per-instance properties of an item.
type Upd struct {
	StackObjectsCount *float64 `json:"StackObjectsCount,omitempty"`
	SpawnedInSession  *bool    `json:"SpawnedInSession,omitempty"`
	SptPresetID       *string  `json:"sptPresetId,omitempty"`
}

// Item is one item instance as the host serialises it.
type Item struct {
	ID       string `json:"_id"`
	Tpl      string `json:"_tpl"`
	ParentID string `json:"parentId,omitempty"`
	SlotID   string `json:"slotId,omitempty"`
	Upd      *Upd   `json:"upd,omitempty"`
}

// StackCount is the stack size, 1 when unset.
func (it Item) StackCount() float64 {
	if it.Upd == nil || it.Upd.StackObjectsCount == nil {
		return 1
	}
	return *it.Upd.StackObjectsCount
}

// FoundInRaid reports whether the instance is flagged as found in raid.
func (it Item) FoundInRaid() bool {
	return it.Upd != nil && it.Upd.SpawnedInSession != nil && *it.Upd.SpawnedInSession
}

// PresetID returns the weapon preset id attached to the item, if any.
func (it Item) PresetID() (string, bool) {
	if it.Upd == nil || it.Upd.SptPresetID == nil || *it.Upd.SptPresetID == "" {
		return "", false
	}
	return *it.Upd.SptPresetID, true
}

// SellResult is a scheduled sale of part of an offer.
type SellResult struct {
	SellTime int64 `json:"sellTime"`
	Amount   *int  `json:"amount,omitempty"`
}

// Offer is a player listing on the flea market.
type Offer struct {
	ID             string       `json:"_id"`
	Items          []Item       `json:"items"`
	SummaryCost    float64      `json:"summaryCost"`
	StartTime      int64        `json:"startTime"`
	EndTime        int64        `json:"endTime"`
	SellInOnePiece bool         `json:"sellInOnePiece"`
	SellResults    []SellResult `json:"sellResults,omitempty"`
}

// TotalStack sums the stack counts of every item in the offer.
func (o *Offer) TotalStack() float64 {
	total := 0.0
	for _, it := range o.Items {
		total += it.StackCount()
	}
	return total
}

func (o *Offer) clone() *Offer {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.SellResults = append([]SellResult(nil), o.SellResults...)
	return &c
}

// Profile is the slice of a player profile the flea hooks look at.
type Profile struct {
	SessionID      string  `json:"sessionId"`
	Level          int     `json:"level"`
	HasRagfairInfo bool    `json:"hasRagfairInfo"`
	Rating         float64 `json:"rating"`
}

// Warning is the client-facing rejection attached to an item event response.
type Warning struct {
	Index        int    `json:"index"`
	ErrorMessage string `json:"errmsg"`
	Code         int    `json:"code"`
}
