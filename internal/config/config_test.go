package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  webhook_port: "8080"
  metrics_port: "9090"

model:
  provider: "anthropic"
  model: "claude-sonnet"
  timeout: "30s"
  retry_count: 3
  temperature: 0.3
  max_tokens: 500

kubernetes:
  context: "test-context"
  namespace: "default"

logging:
  level: "info"
  format: "json"

webhook:
  path: "/webhook"
`
				Expect(os.WriteFile(configFile, []byte(validConfig), 0644)).To(Succeed())
			})

			It("should load configuration successfully", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())

				Expect(cfg.Server.WebhookPort).To(Equal("8080"))
				Expect(cfg.Server.MetricsPort).To(Equal("9090"))

				Expect(cfg.Model.Model).To(Equal("claude-sonnet"))
				Expect(cfg.Model.Timeout).To(Equal(30 * time.Second))
				Expect(cfg.Model.RetryCount).To(Equal(3))
				Expect(cfg.Model.Provider).To(Equal("anthropic"))
				Expect(cfg.Model.Temperature).To(Equal(float32(0.3)))
				Expect(cfg.Model.MaxTokens).To(Equal(500))

				Expect(cfg.Kubernetes.Context).To(Equal("test-context"))
				Expect(cfg.Kubernetes.Namespace).To(Equal("default"))

				Expect(cfg.Logging.Level).To(Equal("info"))
				Expect(cfg.Logging.Format).To(Equal("json"))
				Expect(cfg.Webhook.Path).To(Equal("/webhook"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  webhook_port: "3000"

model:
  model: "test-model"
  provider: "langchain"
`
				Expect(os.WriteFile(configFile, []byte(minimalConfig), 0644)).To(Succeed())
			})

			It("should load with defaults for missing values", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.WebhookPort).To(Equal("3000"))
				Expect(cfg.Model.Model).To(Equal("test-model"))
				Expect(cfg.Kubernetes.Namespace).To(Equal("default"))
				Expect(cfg.Model.Provider).To(Equal("langchain"))
				Expect(cfg.Model.RetryCount).To(Equal(3))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  webhook_port: "8080"
  invalid_yaml: [
model:
  model: "test"
`
				Expect(os.WriteFile(configFile, []byte(invalidConfig), 0644)).To(Succeed())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when model provider is unsupported", func() {
			BeforeEach(func() {
				badProvider := `
model:
  model: "test"
  provider: "carrier-pigeon"
`
				Expect(os.WriteFile(configFile, []byte(badProvider), 0644)).To(Succeed())
			})

			It("should return a validation error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("MODEL_API_KEY", "sk-test")
				os.Setenv("WEBHOOK_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("LOG_LEVEL", "debug")
				os.Setenv("WEBHOOK_SECRET", "shh")
				os.Setenv("INCIDENT_DEDUP_WINDOW_SECONDS", "120")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				Expect(loadFromEnv(cfg)).To(Succeed())

				Expect(cfg.Model.APIKey).To(Equal("sk-test"))
				Expect(cfg.Server.WebhookPort).To(Equal("3000"))
				Expect(cfg.Server.MetricsPort).To(Equal("9999"))
				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.Webhook.Auth.Secret).To(Equal("shh"))
				Expect(cfg.Dedup.WindowSeconds).To(Equal(120))
			})
		})

		Context("when an invalid dedup window is set", func() {
			BeforeEach(func() {
				os.Setenv("INCIDENT_DEDUP_WINDOW_SECONDS", "not-a-number")
			})
			AfterEach(func() { os.Clearenv() })

			It("should return an error", func() {
				Expect(loadFromEnv(cfg)).ToNot(Succeed())
			})
		})
	})
})
