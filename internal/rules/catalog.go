package rules

import (
	"regexp"
	"strings"
)

// Category labels applied by the built-in catalog
const (
	LabelTrash     = "Trash"
	LabelSocial    = "Social"
	LabelTechnical = "Technical"
	LabelOrders    = "Orders"
	LabelBills     = "Bills"
)

// builtinCatalog is authored data. Priorities are unique and increasing so
// the evaluation order is fixed out of the box. Entries list keyword
// alternatives, so they are regex rules built from quoted keywords.
var builtinCatalog = [...]Rule{
	// trash and promotions
	{
		Name:        "No Reply Emails",
		Description: "Tag emails from noreply addresses (Spanish & English)",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("noreply", "no-reply", "sin-respuesta"),
		ActionType:  ActionTag,
		ActionValue: LabelTrash,
		Priority:    1,
	},
	{
		Name:        "Promotional Emails",
		Description: "Tag promotional and marketing emails",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("promo", "promotion", "oferta", "descuento", "oferta especial", "special offer"),
		ActionType:  ActionTag,
		ActionValue: LabelTrash,
		Priority:    2,
	},
	{
		Name:        "Newsletter Detection",
		Description: "Tag newsletter and subscription emails",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("unsubscribe", "darse de baja", "newsletter", "boletín", "suscripción"),
		ActionType:  ActionTag,
		ActionValue: LabelTrash,
		Priority:    3,
	},

	// social media
	{
		Name:        "Facebook Notifications",
		Description: "Tag Facebook notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("facebook", "facebookmail"),
		ActionType:  ActionTag,
		ActionValue: LabelSocial,
		Priority:    4,
	},
	{
		Name:        "Instagram Notifications",
		Description: "Tag Instagram notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("instagram", "instagram.com"),
		ActionType:  ActionTag,
		ActionValue: LabelSocial,
		Priority:    5,
	},
	{
		Name:        "Twitter/X Notifications",
		Description: "Tag Twitter/X notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("twitter", "x.com", "t.co"),
		ActionType:  ActionTag,
		ActionValue: LabelSocial,
		Priority:    6,
	},
	{
		Name:        "LinkedIn Notifications",
		Description: "Tag LinkedIn notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("linkedin", "linked.in"),
		ActionType:  ActionTag,
		ActionValue: LabelSocial,
		Priority:    7,
	},

	// deployment and technical
	{
		Name:        "Deployment Notifications",
		Description: "Tag deployment and technical notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("deploy", "deployment", "despliegue", "build", "pipeline", "ci/cd", "jenkins", "github actions"),
		ActionType:  ActionTag,
		ActionValue: LabelTechnical,
		Priority:    8,
	},
	{
		Name:        "System Alerts",
		Description: "Tag system and monitoring alerts",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("alert", "alerta", "warning", "advertencia", "error", "failed", "falló"),
		ActionType:  ActionTag,
		ActionValue: LabelTechnical,
		Priority:    9,
	},

	// orders and billing
	{
		Name:        "Order Confirmations",
		Description: "Tag order confirmations and updates",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("order confirmation", "pedido confirmado", "your order", "tu pedido", "orden de compra"),
		ActionType:  ActionTag,
		ActionValue: LabelOrders,
		Priority:    10,
	},
	{
		Name:        "Shipping Notifications",
		Description: "Tag shipping and delivery notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("shipped", "enviado", "delivered", "entregado", "on the way", "en camino", "arrives today", "llega hoy"),
		ActionType:  ActionTag,
		ActionValue: LabelOrders,
		Priority:    11,
	},
	{
		Name:        "Invoice Detection",
		Description: "Tag invoices and billing documents",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("invoice", "factura", "billing", "facturación", "recibo", "comprobante", "pdf"),
		ActionType:  ActionTag,
		ActionValue: LabelBills,
		Priority:    12,
	},
	{
		Name:        "Payment Receipts",
		Description: "Tag payment confirmations and receipts",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("payment", "paid", "pago", "pagado", "receipt", "recibo", "transaction", "transacción"),
		ActionType:  ActionTag,
		ActionValue: LabelBills,
		Priority:    13,
	},
	{
		Name:        "Subscription Billing",
		Description: "Tag subscription and recurring billing emails",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("subscription", "suscripción", "renewal", "renovación", "billing cycle", "ciclo de facturación"),
		ActionType:  ActionTag,
		ActionValue: LabelBills,
		Priority:    14,
	},

	// e-commerce sender
	{
		Name:        "Amazon Orders",
		Description: "Tag Amazon order notifications",
		MatchType:   MatchRegex,
		MatchValue:  anyOf("amazon", "amazon.com", "order-update"),
		ActionType:  ActionTag,
		ActionValue: LabelOrders,
		Priority:    15,
	},
}

// BuiltinRules returns a fresh copy of the default rule set, owned by
// BuiltinOwner and active. Callers may modify the returned slice freely.
func BuiltinRules() []Rule {
	out := make([]Rule, len(builtinCatalog))
	for i, r := range builtinCatalog {
		r.Owner = BuiltinOwner
		r.IsActive = true
		out[i] = r
	}
	return out
}

// BuiltinRulesFor returns the catalog assigned to owner, ready to be seeded
// into that user's rule set
func BuiltinRulesFor(owner string) []Rule {
	out := BuiltinRules()
	for i := range out {
		out[i].Owner = owner
	}
	return out
}

// CategoryPattern is a condensed, single-rule view of a catalog category,
// offered to users as a starting point for their own rules
type CategoryPattern struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	MatchType   MatchType  `json:"match_type"`
	MatchValue  string     `json:"match_value"`
	ActionType  ActionType `json:"action_type"`
	ActionValue string     `json:"action_value"`
}

// BuiltinPatterns returns the condensed category patterns keyed by category
func BuiltinPatterns() map[string]CategoryPattern {
	return map[string]CategoryPattern{
		"bills": {
			Name:        "Bills & Invoices",
			Description: "Facturas, recibos, y documentos de pago",
			MatchType:   MatchRegex,
			MatchValue:  anyOf("factura", "invoice", "recibo", "billing", "comprobante", "pdf"),
			ActionType:  ActionTag,
			ActionValue: LabelBills,
		},
		"orders": {
			Name:        "Orders & Shipping",
			Description: "Pedidos y notificaciones de envío",
			MatchType:   MatchRegex,
			MatchValue:  anyOf("pedido", "order", "enviado", "shipped", "entregado", "delivered"),
			ActionType:  ActionTag,
			ActionValue: LabelOrders,
		},
		"trash": {
			Name:        "Trash & Promotions",
			Description: "Promociones, ofertas y correos no deseados",
			MatchType:   MatchRegex,
			MatchValue:  anyOf("oferta", "promo", "descuento", "newsletter", "boletín"),
			ActionType:  ActionTag,
			ActionValue: LabelTrash,
		},
		"noreply": {
			Name:        "No Reply & Automated",
			Description: "Correos automáticos y sin respuesta",
			MatchType:   MatchRegex,
			MatchValue:  anyOf("noreply", "no-reply", "sin-respuesta"),
			ActionType:  ActionTag,
			ActionValue: LabelTrash,
		},
		"social": {
			Name:        "Social Media",
			Description: "Notificaciones de redes sociales",
			MatchType:   MatchRegex,
			MatchValue:  anyOf("facebook", "instagram", "twitter", "linkedin"),
			ActionType:  ActionTag,
			ActionValue: LabelSocial,
		},
		"technical": {
			Name:        "Technical & Deployment",
			Description: "Notificaciones técnicas y de despliegue",
			MatchType:   MatchRegex,
			MatchValue:  anyOf("deploy", "deployment", "despliegue", "build", "alert", "alerta"),
			ActionType:  ActionTag,
			ActionValue: LabelTechnical,
		},
	}
}

// anyOf builds a regex matching any of the literal keywords
func anyOf(keywords ...string) string {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return strings.Join(quoted, "|")
}
