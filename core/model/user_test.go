package model

import "testing"

func TestNewUserQuota(t *testing.T) {
	cases := []struct {
		name      string
		available int64
		used      int64
		total     int64
		relative  float64
	}{
		{"normal", 750, 250, 1000, 25},
		{"rounding", 2, 1, 3, 33.33},
		{"empty", 0, 0, 0, 0},
		{"unlimited", QuotaUnlimited, 4096, QuotaUnlimited, 0},
		{"not_computed", QuotaNotComputed, 10, QuotaNotComputed, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewUserQuota(tc.available, tc.used)
			if q.Total != tc.total || q.Relative != tc.relative || q.Used != tc.used || q.Available != tc.available {
				t.Fatalf("配额推导不符合预期: %+v", q)
			}
		})
	}
}

func TestUserProfileClone(t *testing.T) {
	p := NewUserProfile("alice@cloud.example.com", UserInfo{ID: "alice", DisplayName: "Alice"})
	q := NewUserQuota(10, 5)
	p.Quota = &q
	p.Avatar = &UserAvatar{CacheKey: "k", MimeType: "image/png", ETag: "e"}

	cp := p.Clone()
	cp.Quota.Used = 99
	cp.Avatar.ETag = "changed"
	if p.Quota.Used != 5 || p.Avatar.ETag != "e" {
		t.Fatalf("Clone 应为深拷贝，原对象被修改: %+v %+v", p.Quota, p.Avatar)
	}
}
