package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	bills := Rule{ID: 1, Name: "Bills", MatchType: MatchSubject, MatchValue: "invoice", ActionType: ActionTag, ActionValue: "Bills", Priority: 1, IsActive: true}

	t.Run("single matching rule", func(t *testing.T) {
		got := Resolve(Email{Subject: "Your March Invoice"}, []Rule{bills})
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.ID)
	})

	t.Run("lower priority number wins", func(t *testing.T) {
		low := Rule{ID: 10, MatchType: MatchSubject, MatchValue: "invoice", ActionType: ActionArchive, Priority: 5, IsActive: true}
		high := Rule{ID: 20, MatchType: MatchSender, MatchValue: "billing", ActionType: ActionMarkRead, Priority: 2, IsActive: true}
		email := Email{Sender: "billing@example.com", Subject: "Invoice"}

		got := Resolve(email, []Rule{low, high})
		require.NotNil(t, got)
		assert.Equal(t, int64(20), got.ID)
	})

	t.Run("ties keep input order", func(t *testing.T) {
		a := Rule{ID: 1, MatchType: MatchSubject, MatchValue: "report", Priority: 3, IsActive: true}
		b := Rule{ID: 2, MatchType: MatchSubject, MatchValue: "report", Priority: 3, IsActive: true}
		email := Email{Subject: "Weekly report"}

		got := Resolve(email, []Rule{a, b})
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.ID)

		got = Resolve(email, []Rule{b, a})
		require.NotNil(t, got)
		assert.Equal(t, int64(2), got.ID)
	})

	t.Run("inactive rules are skipped", func(t *testing.T) {
		inactive := bills
		inactive.ID = 99
		inactive.Priority = 0
		inactive.IsActive = false

		got := Resolve(Email{Subject: "invoice"}, []Rule{inactive, bills})
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.ID)
	})

	t.Run("only inactive rules", func(t *testing.T) {
		inactive := bills
		inactive.IsActive = false
		assert.Nil(t, Resolve(Email{Subject: "invoice"}, []Rule{inactive}))
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, Resolve(Email{Subject: "lunch"}, []Rule{bills}))
	})

	t.Run("empty rule set", func(t *testing.T) {
		assert.Nil(t, Resolve(Email{Subject: "invoice"}, nil))
		assert.Nil(t, Resolve(Email{Subject: "invoice"}, []Rule{}))
	})

	t.Run("invalid regex is inert and later rules still apply", func(t *testing.T) {
		broken := Rule{ID: 5, MatchType: MatchRegex, MatchValue: "(unbalanced", Priority: 0, IsActive: true}
		got := Resolve(Email{Subject: "invoice (unbalanced"}, []Rule{broken, bills})
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.ID)
	})
}

func TestResolveDoesNotReorderInput(t *testing.T) {
	in := []Rule{
		{ID: 1, MatchType: MatchSubject, MatchValue: "x", Priority: 9, IsActive: true},
		{ID: 2, MatchType: MatchSubject, MatchValue: "x", Priority: 1, IsActive: true},
		{ID: 3, MatchType: MatchSubject, MatchValue: "x", Priority: 5, IsActive: false},
	}
	Resolve(Email{Subject: "x"}, in)

	assert.Equal(t, []int64{1, 2, 3}, []int64{in[0].ID, in[1].ID, in[2].ID})
}

func TestResolveProperties(t *testing.T) {
	ruleSet := []Rule{
		{ID: 1, MatchType: MatchSender, MatchValue: "facebook", Priority: 4, IsActive: true},
		{ID: 2, MatchType: MatchSubject, MatchValue: "alert|warning", Priority: 2, IsActive: false},
		{ID: 3, MatchType: MatchSubject, MatchValue: "alert", Priority: 2, IsActive: true},
		{ID: 4, MatchType: MatchBody, MatchValue: "unsubscribe", Priority: 7, IsActive: true},
		{ID: 5, MatchType: MatchRegex, MatchValue: `order\s+#\d+`, Priority: 2, IsActive: true},
		{ID: 6, MatchType: MatchRegex, MatchValue: "[", Priority: 1, IsActive: true},
		{ID: 7, MatchType: MatchHeader, MatchValue: "example.org", Priority: 7, IsActive: true},
	}

	emails := []Email{
		{Sender: "notification@facebookmail.com", Subject: "New login alert"},
		{Sender: "shop@example.com", Subject: "Order #123 shipped", BodyPreview: "unsubscribe"},
		{Sender: "friend@example.net", To: "me@example.org", Subject: "dinner"},
		{Sender: "friend@example.net", Subject: "dinner", BodyPreview: "click to unsubscribe"},
		{Subject: "nothing to see"},
		{},
	}

	byID := map[int64]Rule{}
	for _, r := range ruleSet {
		byID[r.ID] = r
	}

	for _, email := range emails {
		first := Resolve(email, ruleSet)
		second := Resolve(email, ruleSet)
		assert.Equal(t, first, second, "resolution must be deterministic")

		if first == nil {
			for _, r := range ruleSet {
				if r.IsActive {
					assert.False(t, Matches(email, r), "rule %d matches but nothing was resolved", r.ID)
				}
			}
			continue
		}

		orig, ok := byID[first.ID]
		require.True(t, ok, "resolved rule must come from the input")
		assert.True(t, orig.IsActive, "resolved rule must be active")
		assert.True(t, Matches(email, orig))

		// no active matching rule may have a strictly lower priority number
		for _, r := range ruleSet {
			if r.IsActive && Matches(email, r) {
				assert.GreaterOrEqual(t, r.Priority, first.Priority)
			}
		}
	}
}

func TestResolverSnapshot(t *testing.T) {
	in := []Rule{
		{ID: 1, MatchType: MatchSubject, MatchValue: "a", Priority: 3, IsActive: true},
		{ID: 2, MatchType: MatchSubject, MatchValue: "a", Priority: 1, IsActive: true},
		{ID: 3, MatchType: MatchSubject, MatchValue: "a", Priority: 2, IsActive: false},
	}

	r := NewResolver(in)
	assert.Equal(t, 2, r.Len())

	ordered := r.Rules()
	require.Len(t, ordered, 2)
	assert.Equal(t, int64(2), ordered[0].ID)
	assert.Equal(t, int64(1), ordered[1].ID)

	// later changes to the input do not leak into the snapshot
	in[1].IsActive = false
	got := r.Resolve(Email{Subject: "a"})
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	// mutating the returned rule does not affect the resolver
	got.Priority = 100
	again := r.Resolve(Email{Subject: "a"})
	require.NotNil(t, again)
	assert.Equal(t, 1, again.Priority)
}

func TestResolverEvaluate(t *testing.T) {
	r := NewResolver([]Rule{{ID: 1, MatchType: MatchSubject, MatchValue: "invoice", IsActive: true}})

	hit := r.Evaluate(Email{ID: "m1", Subject: "Invoice"})
	assert.True(t, hit.Matched())
	assert.Equal(t, "m1", hit.Email.ID)

	miss := r.Evaluate(Email{ID: "m2", Subject: "lunch"})
	assert.False(t, miss.Matched())
	assert.Nil(t, miss.Rule)
}

func TestResolveBuiltinCatalog(t *testing.T) {
	catalog := BuiltinRules()

	tests := []struct {
		name      string
		email     Email
		wantRule  string
		wantLabel string
	}{
		{
			name:      "noreply sender goes to trash",
			email:     Email{Sender: "Store <noreply@store.example>", Subject: "Your invoice"},
			wantRule:  "No Reply Emails",
			wantLabel: LabelTrash,
		},
		{
			name:      "facebook sender",
			email:     Email{Sender: "Facebook <notification@facebookmail.com>", Subject: "New login"},
			wantRule:  "Facebook Notifications",
			wantLabel: LabelSocial,
		},
		{
			name:      "spanish invoice",
			email:     Email{Sender: "facturas@empresa.example", Subject: "Su factura de marzo"},
			wantRule:  "Invoice Detection",
			wantLabel: LabelBills,
		},
		{
			name:      "deployment subject",
			email:     Email{Sender: "ci@example.com", Subject: "Deployment succeeded"},
			wantRule:  "Deployment Notifications",
			wantLabel: LabelTechnical,
		},
		{
			name:      "shipping subject",
			email:     Email{Sender: "store@example.com", Subject: "Your package has shipped"},
			wantRule:  "Shipping Notifications",
			wantLabel: LabelOrders,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.email, catalog)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantRule, got.Name)
			assert.Equal(t, ActionTag, got.ActionType)
			assert.Equal(t, tt.wantLabel, got.ActionValue)
		})
	}
}
