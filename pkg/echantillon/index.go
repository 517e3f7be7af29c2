package echantillon

import "github.com/Ramsey-B/bynight/pkg/models"

// placeKey identifies a place inside a bucket. Persisted places use their id; places not yet
// persisted use a slot handed out by the arena. Slots start at 1 so the two never collide.
type placeKey struct {
	id   int64
	slot int
}

// arena hands out local slots to places that have no persistent id yet. The pointer is only
// the handle a slot is looked up by; buckets key places by the slot, never by the pointer.
type arena struct {
	slots map[*models.Place]int
	next  int
}

func newArena() *arena {
	return &arena{slots: make(map[*models.Place]int)}
}

func (a *arena) keyOf(place *models.Place) placeKey {
	if place.ID != 0 {
		return placeKey{id: place.ID}
	}
	slot, ok := a.slots[place]
	if !ok {
		a.next++
		slot = a.next
		a.slots[place] = slot
	}
	return placeKey{slot: slot}
}

// bucket is an insertion-ordered set of places.
type bucket struct {
	keys   []placeKey
	places map[placeKey]*models.Place
}

func newBucket() *bucket {
	return &bucket{places: make(map[placeKey]*models.Place)}
}

// put inserts or replaces in place.
func (b *bucket) put(key placeKey, place *models.Place) {
	if _, ok := b.places[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.places[key] = place
}

func (b *bucket) size() int {
	return len(b.keys)
}

func (b *bucket) values() []*models.Place {
	values := make([]*models.Place, 0, len(b.keys))
	for _, key := range b.keys {
		values = append(values, b.places[key])
	}
	return values
}

func (b *bucket) findByExternalID(externalID string) *models.Place {
	for _, key := range b.keys {
		if place := b.places[key]; place.ExternalID == externalID {
			return place
		}
	}
	return nil
}
