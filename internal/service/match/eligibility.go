package match

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"gorm.io/datatypes"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/repository"
)

// Eligibility codes reported when dating cannot be enabled.
const (
	CodeMissingPhotoPostID         = "MISSING_PHOTO_POST_ID"
	CodeWrongPhotoPost             = "WRONG_PHOTO_POST"
	CodeMissingFullName            = "MISSING_FULL_NAME"
	CodeMissingDisplayName         = "MISSING_DISPLAY_NAME"
	CodeMissingGender              = "MISSING_GENDER"
	CodeMissingAge                 = "MISSING_AGE"
	CodeWrongAgeMin                = "WRONG_AGE_MIN"
	CodeWrongAgeMax                = "WRONG_AGE_MAX"
	CodeMissingHeight              = "MISSING_HEIGHT"
	CodeMissingLocation            = "MISSING_LOCATION"
	CodeMissingMatchAgeRange       = "MISSING_MATCH_AGE_RANGE"
	CodeMissingMatchGenders        = "MISSING_MATCH_GENDERS"
	CodeMissingMatchHeightRange    = "MISSING_MATCH_HEIGHT_RANGE"
	CodeMissingMatchLocationRadius = "MISSING_MATCH_LOCATION_RADIUS"
	CodeWrongThreeHourPeriod       = "WRONG_THREE_HOUR_PERIOD"
	CodeWrongSubscriptionLevel     = "WRONG_SUBSCRIPTION_LEVEL"
	CodeUserNotActive              = "USER_NOT_ACTIVE"
)

// eligibility returns every reason u cannot date. An empty result means u
// may enable dating.
func (s *Service) eligibility(ctx context.Context, posts *repository.PostRepository, u *db.User, now time.Time) ([]string, error) {
	var codes []string
	missing := func(cond bool, code string) {
		if cond {
			codes = append(codes, code)
		}
	}

	if u.PhotoPostID == nil {
		codes = append(codes, CodeMissingPhotoPostID)
	} else {
		p, err := posts.Get(ctx, *u.PhotoPostID)
		if err != nil {
			return nil, err
		}
		diamond := u.SubscriptionLevel == db.SubscriptionDiamond
		missing(p == nil || p.UserID != u.ID || p.Status != db.PostCompleted || (!p.TakenInReal && !diamond), CodeWrongPhotoPost)
	}

	missing(blank(u.FullName), CodeMissingFullName)
	missing(blank(u.DisplayName), CodeMissingDisplayName)
	missing(blank(u.Gender), CodeMissingGender)

	if u.DateOfBirth == nil {
		codes = append(codes, CodeMissingAge)
	} else {
		age := Age(*u.DateOfBirth, now)
		cfg := s.appCtx.Config.Dating
		missing(age < cfg.MinAge, CodeWrongAgeMin)
		missing(age > cfg.MaxAge, CodeWrongAgeMax)
	}

	missing(u.Height == nil, CodeMissingHeight)
	missing(u.LocationLat == nil || u.LocationLng == nil, CodeMissingLocation)
	missing(u.MatchAgeMin == nil || u.MatchAgeMax == nil, CodeMissingMatchAgeRange)
	missing(len(Genders(u.MatchGenders)) == 0, CodeMissingMatchGenders)
	missing(u.MatchHeightMin == nil || u.MatchHeightMax == nil, CodeMissingMatchHeightRange)
	missing(u.SubscriptionLevel != db.SubscriptionDiamond && u.MatchLocationRadius == nil, CodeMissingMatchLocationRadius)
	return codes, nil
}

func blank(s *string) bool { return s == nil || *s == "" }

// Age returns the number of whole years between dob and now.
func Age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// Genders decodes a user's preferred genders.
func Genders(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two coordinates.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// wants reports whether u's preferences accept other.
func wants(u, other *db.User, now time.Time) bool {
	if other.Gender == nil || other.DateOfBirth == nil || other.Height == nil {
		return false
	}
	if u.MatchAgeMin == nil || u.MatchAgeMax == nil || u.MatchHeightMin == nil || u.MatchHeightMax == nil {
		return false
	}
	accepted := false
	for _, g := range Genders(u.MatchGenders) {
		if g == *other.Gender {
			accepted = true
			break
		}
	}
	if !accepted {
		return false
	}
	age := Age(*other.DateOfBirth, now)
	if age < *u.MatchAgeMin || age > *u.MatchAgeMax {
		return false
	}
	if *other.Height < *u.MatchHeightMin || *other.Height > *u.MatchHeightMax {
		return false
	}
	if u.MatchLocationRadius == nil {
		// no radius means anywhere
		return true
	}
	if u.LocationLat == nil || u.LocationLng == nil || other.LocationLat == nil || other.LocationLng == nil {
		return false
	}
	return DistanceKm(*u.LocationLat, *u.LocationLng, *other.LocationLat, *other.LocationLng) <= float64(*u.MatchLocationRadius)
}

// SearchBox bounds the area u's radius can reach, or nil when u matches
// anywhere. Longitude is left open near the poles and across the
// antimeridian.
func SearchBox(u *db.User) *repository.GeoBox {
	if u.MatchLocationRadius == nil || u.LocationLat == nil || u.LocationLng == nil {
		return nil
	}
	lat, lng := *u.LocationLat, *u.LocationLng
	arc := float64(*u.MatchLocationRadius) / earthRadiusKm
	dLat := arc * 180 / math.Pi
	box := &repository.GeoBox{MinLat: lat - dLat, MaxLat: lat + dLat}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return box
	}

	// widest longitude reached by the circle around lat
	ratio := math.Sin(arc) / math.Cos(lat*math.Pi/180)
	if ratio >= 1 {
		return box
	}
	dLng := math.Asin(ratio) * 180 / math.Pi
	if lng-dLng < -180 || lng+dLng > 180 {
		return box
	}
	minLng, maxLng := lng-dLng, lng+dLng
	box.MinLng, box.MaxLng = &minLng, &maxLng
	return box
}
