package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Claim is the value stored under a claims:{ingester} key (spec.md §3).
// TickUnix duplicates Tick as a plain integer so takeoverScript can
// compare ticks without date-parsing inside Lua; Tick itself stays an
// RFC3339 time.Time for human-readable inspection via redis-cli.
type Claim struct {
	OwnerID    string    `json:"owner_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	Tick       time.Time `json:"tick_index"`
	TickUnix   int64     `json:"tick_unix"`
}

// takeoverScript makes claim acquisition a single atomic round trip:
// set unconditionally if the key is absent, set if the existing
// claim's tick is strictly older than the new one (stale-claim
// takeover), or refuse otherwise. Evaluating this as one script is
// what TryClaim needs but a bare Get-then-Set can never give: two
// processes racing to take over the same stale claim cannot both see
// "absent/stale" and both win, since Redis runs the whole script
// single-threaded against the key.
const takeoverScript = `
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
  return 1
end
local ok, claim = pcall(cjson.decode, current)
if not ok or claim.tick_unix == nil then
  return 0
end
if tonumber(claim.tick_unix) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return 1
`

// TryClaim implements the dispatch algorithm's step 2 (spec.md §4.2):
// write claims:{name} -> {owner_id, T_k} with the given TTL,
// conditional on the key being absent or its stored tick being
// strictly older than T_k. Returns true iff this call became the
// owner of tick T_k. Ties (same or newer tick already claimed) abort
// silently, per spec.md: "Failure means another instance owns this
// tick; abort silently."
func TryClaim(ctx context.Context, c Cache, key, ownerID string, tick time.Time, ttl time.Duration) (bool, error) {
	claim := Claim{OwnerID: ownerID, AcquiredAt: time.Now().UTC(), Tick: tick, TickUnix: tick.Unix()}
	payload, err := json.Marshal(claim)
	if err != nil {
		return false, fmt.Errorf("marshal claim: %w", err)
	}

	won, err := c.RunScript(ctx, takeoverScript, []string{key}, payload, int64(ttl.Seconds()), tick.Unix())
	if err != nil {
		return false, err
	}
	return won == 1, nil
}
