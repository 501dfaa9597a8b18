package registry

import "github.com/squidstack/squidflags/pkg/model"

const DefaultNamespace = "squidstack.ui"

// Flag keys recognized by the storefront UI. Keys must match the remote configuration exactly.
const (
	ShowTopBannerEnhanced = "showTopBannerEnhanced"
	BannerText            = "bannerText"
	BannerTone            = "bannerTone"
	BannerLink            = "bannerLink"
	WelcomeStatement      = "welcome_statement"
	AdminHealth           = "adminHealth"
	ShowDebugFooter       = "showDebugFooter"
	ShowIntro             = "showIntro"
	IntroTitle            = "introTitle"
	IntroText             = "introText"
	CompanyName           = "companyName"
	ShowCompanyName       = "showCompanyName"
	IntroAudience         = "introAudience"
	ShowCloudBeesBrand    = "showCloudBeesBrand"
	CloudBeesNote         = "cloudBeesNote"
	AdminUsers            = "adminUsers"
	Products              = "products"
	LogLevel              = "logLevel"
)

func boolFlag(name string, def bool) model.FlagDefinition {
	return model.FlagDefinition{Name: name, Kind: model.Boolean, Default: model.BoolValue(def)}
}

func stringFlag(name, def string) model.FlagDefinition {
	return model.FlagDefinition{Name: name, Kind: model.FreeString, Default: model.StringValue(def)}
}

func enumFlag(name, def string, allowed ...string) model.FlagDefinition {
	return model.FlagDefinition{Name: name, Kind: model.StringEnum, Default: model.StringValue(def), AllowedValues: allowed}
}

// Default returns the registry of every flag the storefront recognizes.
func Default() *Registry {
	return New(DefaultNamespace).MustRegister(
		boolFlag(ShowTopBannerEnhanced, false),
		stringFlag(BannerText, "Black Friday: 25 percent off everything!"),
		enumFlag(BannerTone, "promo", "info", "warning", "promo"),
		stringFlag(BannerLink, ""),
		stringFlag(WelcomeStatement, "Hello"),

		boolFlag(AdminHealth, true),
		boolFlag(ShowDebugFooter, false),

		// intro, shown when logged out
		boolFlag(ShowIntro, true),
		stringFlag(IntroTitle, "Welcome to Squid UI"),
		stringFlag(IntroText, "Squid Stack is a demo wholesaler experience. Use it to showcase feature management, toggled UI, and progressive rollout scenarios."),

		stringFlag(CompanyName, "Squid Stack"),
		boolFlag(ShowCompanyName, true),
		enumFlag(IntroAudience, "wholesalers", "wholesalers", "distributors", "partners"),

		boolFlag(ShowCloudBeesBrand, true),
		stringFlag(CloudBeesNote, "Built with CloudBees Unify"),

		boolFlag(AdminUsers, false),
		boolFlag(Products, false),

		enumFlag(LogLevel, "info", "off", "error", "warn", "info", "debug"),
	)
}
