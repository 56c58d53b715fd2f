package core

import (
	"log"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		AllowedOrigins            []string
		CookieDomain              string
		CookieSecure              bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ShopConfig struct {
		Currency              string
		ShippingFee           int64 // minor units
		FreeShippingThreshold int64 // minor units; 0 disables
		WhatsAppNumber        string
		ProductCacheTTL       time.Duration
		ProductCacheStaleTTL  time.Duration
	}

	StripeConfig struct {
		SecretKey     string
		WebhookSecret string
	}

	PayPalConfig struct {
		ClientID string
		Secret   string
		BaseURL  string
	}

	CryptoConfig struct {
		RPCURL           string
		TokenContract    string
		MerchantWallet   string
		TokenDecimals    int
		MinConfirmations int64
	}

	SupabaseConfig struct {
		URL     string
		AnonKey string
	}

	S3Config struct {
		Region          string
		Bucket          string
		KeyPrefix       string
		AccessKeyID     string
		SecretAccessKey string
		PublicBaseURL   string
	}

	Config struct {
		AppName                   string
		Env                       string // DEV (default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Shop     ShopConfig
		Stripe   StripeConfig
		PayPal   PayPalConfig
		Crypto   CryptoConfig
		Supabase SupabaseConfig
		S3       S3Config

		defaultFromEmail string
	}
)

func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("SAUDA_ENV"))
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := ".env." + strings.ToLower(env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v := viper.New()
	v.SetEnvPrefix("sauda")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetTypeByDefaultValue(true)
	setDefaults(v, env)
	v.AutomaticEnv()

	return &Config{
		AppName:                   v.GetString("appName"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			AllowedOrigins:            v.GetStringSlice("server.allowedOrigins"),
			CookieDomain:              v.GetString("server.cookieDomain"),
			CookieSecure:              v.GetBool("server.cookieSecure"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Shop: ShopConfig{
			Currency:              strings.ToUpper(v.GetString("shop.currency")),
			ShippingFee:           v.GetInt64("shop.shippingFee"),
			FreeShippingThreshold: v.GetInt64("shop.freeShippingThreshold"),
			WhatsAppNumber:        v.GetString("shop.whatsAppNumber"),
			ProductCacheTTL:       v.GetDuration("shop.productCacheTTL"),
			ProductCacheStaleTTL:  v.GetDuration("shop.productCacheStaleTTL"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secretKey"),
			WebhookSecret: v.GetString("stripe.webhookSecret"),
		},
		PayPal: PayPalConfig{
			ClientID: v.GetString("paypal.clientID"),
			Secret:   v.GetString("paypal.secret"),
			BaseURL:  v.GetString("paypal.baseURL"),
		},
		Crypto: CryptoConfig{
			RPCURL:           v.GetString("crypto.rpcURL"),
			TokenContract:    strings.ToLower(v.GetString("crypto.tokenContract")),
			MerchantWallet:   strings.ToLower(v.GetString("crypto.merchantWallet")),
			TokenDecimals:    v.GetInt("crypto.tokenDecimals"),
			MinConfirmations: v.GetInt64("crypto.minConfirmations"),
		},
		Supabase: SupabaseConfig{
			URL:     v.GetString("supabase.url"),
			AnonKey: v.GetString("supabase.anonKey"),
		},
		S3: S3Config{
			Region:          v.GetString("s3.region"),
			Bucket:          v.GetString("s3.bucket"),
			KeyPrefix:       v.GetString("s3.keyPrefix"),
			AccessKeyID:     v.GetString("s3.accessKeyID"),
			SecretAccessKey: v.GetString("s3.secretAccessKey"),
			PublicBaseURL:   v.GetString("s3.publicBaseURL"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("appName", "Sauda")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "7u$h9-kq!x2mz+na)4rw(0b=dp#e8v&jc@l1fsy5o^6tg3hi*")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Sauda <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:8080"})
	v.SetDefault("server.cookieDomain", "")
	v.SetDefault("server.cookieSecure", env == "PROD" || env == "QA")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "sauda")
	v.SetDefault("database.user", "sauda")
	v.SetDefault("database.password", "sauda")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("shop.currency", "USD")
	v.SetDefault("shop.shippingFee", 499)
	v.SetDefault("shop.freeShippingThreshold", 7500)
	v.SetDefault("shop.whatsAppNumber", "")
	v.SetDefault("shop.productCacheTTL", 5*time.Minute)
	v.SetDefault("shop.productCacheStaleTTL", 30*time.Minute)

	v.SetDefault("stripe.secretKey", "")
	v.SetDefault("stripe.webhookSecret", "")

	v.SetDefault("paypal.clientID", "")
	v.SetDefault("paypal.secret", "")
	v.SetDefault("paypal.baseURL", "https://api-m.sandbox.paypal.com")

	v.SetDefault("crypto.rpcURL", "")
	v.SetDefault("crypto.tokenContract", "")
	v.SetDefault("crypto.merchantWallet", "")
	v.SetDefault("crypto.tokenDecimals", 6)
	v.SetDefault("crypto.minConfirmations", 3)

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anonKey", "")

	v.SetDefault("s3.region", "eu-central-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.keyPrefix", "products/")
	v.SetDefault("s3.accessKeyID", "")
	v.SetDefault("s3.secretAccessKey", "")
	v.SetDefault("s3.publicBaseURL", "")
}

// DefaultFromEmail parses the configured sender, falling back to a bare noreply address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@" + c.Server.Host}
	}
	return *addr
}

func (c *Config) SetDefaultFromEmail(addr string) {
	c.defaultFromEmail = addr
}

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}
