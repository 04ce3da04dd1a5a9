// Package fingerprint obtains and localizes browser fingerprints for accounts
// that do not have one yet.
package fingerprint

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"sync"
	"time"

	"account_sync/internal/apperr"
	"account_sync/internal/model"
)

const (
	osFamily = "windows"

	minChromeMajor = 120
	maxChromeMajor = 138

	targetTimezone = "Europe/Kyiv"

	minAccuracyMeters = 30
	maxAccuracyMeters = 59
)

var chromeVersionRe = regexp.MustCompile(`Chrome/(\d+\.\d+\.\d+\.\d+)`)

// kyivPoints are the coordinates profiles are placed at.
var kyivPoints = []model.GeoPoint{
	{Latitude: 50.4491, Longitude: 30.5234},
	{Latitude: 50.4567, Longitude: 30.515},
	{Latitude: 50.4653, Longitude: 30.501},
	{Latitude: 50.4755, Longitude: 30.5542},
	{Latitude: 50.4179, Longitude: 30.5371},
	{Latitude: 50.4322, Longitude: 30.6231},
	{Latitude: 50.4549, Longitude: 30.6043},
	{Latitude: 50.4967, Longitude: 30.6021},
	{Latitude: 50.5141, Longitude: 30.4669},
	{Latitude: 50.4975, Longitude: 30.4794},
	{Latitude: 50.3914, Longitude: 30.4907},
	{Latitude: 50.3702, Longitude: 30.5191},
	{Latitude: 50.4385, Longitude: 30.3931},
	{Latitude: 50.4672, Longitude: 30.3753},
	{Latitude: 50.4011, Longitude: 30.6334},
	{Latitude: 50.507, Longitude: 30.5745},
	{Latitude: 50.4503, Longitude: 30.5229},
	{Latitude: 50.4264, Longitude: 30.5312},
	{Latitude: 50.4439, Longitude: 30.5206},
	{Latitude: 50.4205, Longitude: 30.5078},
}

type Source interface {
	GetFingerprint(ctx context.Context, os, browserVersion string) (model.Fingerprint, error)
}

type Provisioner struct {
	src Source

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(src Source) *Provisioner {
	seed := uint64(time.Now().UnixNano())
	return NewWithRand(src, rand.New(rand.NewPCG(seed, seed>>7|1)))
}

func NewWithRand(src Source, rnd *rand.Rand) *Provisioner {
	return &Provisioner{src: src, rnd: rnd}
}

// Ensure returns the account's fingerprint, fetching and localizing a new one
// when none is stored. fresh reports whether the caller has to persist it.
func (p *Provisioner) Ensure(ctx context.Context, acc model.Account) (fp model.Fingerprint, fresh bool, err error) {
	if acc.VisionFingerprint != nil {
		return acc.VisionFingerprint, false, nil
	}

	version := p.ChromeVersion(acc.UserAgent)
	fp, err = p.src.GetFingerprint(ctx, osFamily, version)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.E(apperr.External, "fingerprint", err)
		}
		return nil, false, fmt.Errorf("fetch fingerprint for chrome %s: %w", version, err)
	}
	fp = fp.Clone()
	p.localize(fp)
	return fp, true, nil
}

// ChromeVersion extracts the full Chrome version from a user agent, falling
// back to a random major version in the supported range.
func (p *Provisioner) ChromeVersion(userAgent string) string {
	if m := chromeVersionRe.FindStringSubmatch(userAgent); m != nil {
		return m[1]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return strconv.Itoa(minChromeMajor + p.rnd.IntN(maxChromeMajor-minChromeMajor+1))
}

func (p *Provisioner) localize(fp model.Fingerprint) {
	nav := fp.Navigator()
	nav["timezone"] = targetTimezone
	nav["languages"] = []any{}
	nav["language"] = "auto"

	fp["webrtc_pref"] = "auto"
	fp["canvas_pref"] = "real"
	fp["webgl_pref"] = "real"
	fp["ports_protection"] = []any{}

	p.mu.Lock()
	point := kyivPoints[p.rnd.IntN(len(kyivPoints))]
	point.Accuracy = minAccuracyMeters + p.rnd.IntN(maxAccuracyMeters-minAccuracyMeters+1)
	p.mu.Unlock()

	fp["geolocation"] = map[string]any{
		"latitude":  point.Latitude,
		"longitude": point.Longitude,
		"accuracy":  point.Accuracy,
	}
}
