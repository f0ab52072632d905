package db

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears every table.
//  2. Creates 20 ACTIVE users (10 male, 10 female) around London, each with
//     a completed photo post and a full dating profile, dating ENABLED.
//  3. Adds random FOLLOWING edges, roughly a third of them mutual.
//
// Derived state (cards, potential matches) is not written here; callers
// schedule reconciliation for the returned user ids.
func SeedTestData(db *gorm.DB) ([]string, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	if err := truncateAll(db); err != nil {
		return nil, err
	}

	// --- Seed Users ---
	now := time.Now().UTC()
	ids := make([]string, 0, 20)
	for i := 1; i <= 20; i++ {
		id := fmt.Sprintf("user%d", i)
		gender, wants := "male", "female"
		if i > 10 {
			gender, wants = "female", "male"
		}

		photoURL := fmt.Sprintf("https://cdn.example/%s/photo.jpg", id)
		post := Post{
			ID:           id + "-photo",
			UserID:       id,
			Status:       PostCompleted,
			ContentHash:  fmt.Sprintf("seed-%s", id),
			TakenInReal:  true,
			ImageURL:     &photoURL,
			ThumbnailURL: &photoURL,
			CompletedAt:  &now,
		}
		if err := db.Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to seed post: %w", err)
		}

		genders, _ := json.Marshal([]string{wants})
		email := id + "@example.com"
		dob := now.AddDate(-(20 + r.Intn(20)), -r.Intn(12), 0)
		user := User{
			ID:                  id,
			Username:            id,
			Email:               &email,
			Status:              UserStatusActive,
			SubscriptionLevel:   SubscriptionBasic,
			PrivacyStatus:       PrivacyPublic,
			FullName:            ptr(fmt.Sprintf("User %d", i)),
			DisplayName:         ptr(id),
			PhotoPostID:         &post.ID,
			DatingStatus:        DatingEnabled,
			Gender:              &gender,
			DateOfBirth:         &dob,
			Height:              ptr(155 + r.Intn(40)),
			LocationLat:         ptr(51.5 + (r.Float64()-0.5)*0.2),
			LocationLng:         ptr(-0.12 + (r.Float64()-0.5)*0.2),
			MatchAgeMin:         ptr(18),
			MatchAgeMax:         ptr(60),
			MatchHeightMin:      ptr(140),
			MatchHeightMax:      ptr(220),
			MatchLocationRadius: ptr(50),
			MatchGenders:        datatypes.JSON(genders),
		}
		if i%5 == 0 {
			user.SubscriptionLevel = SubscriptionDiamond
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to seed user: %w", err)
		}
		ids = append(ids, id)
	}

	// --- Seed Follows ---
	for a := 1; a <= 20; a++ {
		for j := 0; j < 4; j++ {
			b := r.Intn(20) + 1
			if b == a {
				continue
			}
			edges := []Follow{{FollowerID: fmt.Sprintf("user%d", a), FollowedID: fmt.Sprintf("user%d", b), Status: FollowFollowing}}
			if j%3 == 0 {
				edges = append(edges, Follow{FollowerID: fmt.Sprintf("user%d", b), FollowedID: fmt.Sprintf("user%d", a), Status: FollowFollowing})
			}
			for _, f := range edges {
				if err := db.Where(Follow{FollowerID: f.FollowerID, FollowedID: f.FollowedID}).FirstOrCreate(&f).Error; err != nil {
					return nil, fmt.Errorf("failed to seed follow: %w", err)
				}
			}
		}
	}
	return ids, nil
}

func truncateAll(db *gorm.DB) error {
	all := All()
	for i := len(all) - 1; i >= 0; i-- {
		// fresh session per model, unscoped so soft-deleted rows go too
		err := db.Session(&gorm.Session{NewDB: true}).Unscoped().Where("1 = 1").Delete(all[i]).Error
		if err != nil {
			return fmt.Errorf("failed to clear %T: %w", all[i], err)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
