package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("AutonomyStore", func() {
	var (
		tempDir string
		path    string
		logger  *zap.Logger
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "autonomy-test")
		Expect(err).NotTo(HaveOccurred())
		path = filepath.Join(tempDir, "autonomy.yaml")
		logger = zap.NewNop()
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	It("falls back to DefaultAutonomyConfig when the file does not exist", func() {
		store, err := NewAutonomyStore(path, logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		cfg := store.Get()
		Expect(cfg.Mode).To(Equal(ModePlan))
		Expect(cfg.ConfidenceThreshold).To(Equal(0.7))
	})

	It("loads the policy on disk when present", func() {
		Expect(os.WriteFile(path, []byte("mode: yolo\nconfidence_threshold: 0.9\n"), 0644)).To(Succeed())

		store, err := NewAutonomyStore(path, logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		cfg := store.Get()
		Expect(cfg.Mode).To(Equal(ModeYOLO))
		Expect(cfg.ConfidenceThreshold).To(Equal(0.9))
	})

	It("hot-reloads when the file changes on disk", func() {
		Expect(os.WriteFile(path, []byte("mode: plan\n"), 0644)).To(Succeed())

		store, err := NewAutonomyStore(path, logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store.Get().Mode).To(Equal(ModePlan))

		Expect(os.WriteFile(path, []byte("mode: approval\n"), 0644)).To(Succeed())

		Eventually(func() Mode {
			return store.Get().Mode
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(ModeApproval))
	})

	It("Set persists the new policy and updates the snapshot atomically", func() {
		store, err := NewAutonomyStore(path, logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		updated := DefaultAutonomyConfig()
		updated.EmergencyStop = true
		Expect(store.Set(updated)).To(Succeed())

		Expect(store.Get().EmergencyStop).To(BeTrue())

		onDisk, err := readAutonomyFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(onDisk.EmergencyStop).To(BeTrue())
	})

	Describe("environment overrides", func() {
		AfterEach(func() { os.Clearenv() })

		It("overlays AUTONOMY_MODE and CONFIDENCE_THRESHOLD onto the file-loaded policy at startup", func() {
			Expect(os.WriteFile(path, []byte("mode: plan\nconfidence_threshold: 0.7\n"), 0644)).To(Succeed())
			os.Setenv("AUTONOMY_MODE", "approval")
			os.Setenv("CONFIDENCE_THRESHOLD", "0.95")
			os.Setenv("DRY_RUN_MODE", "true")

			store, err := NewAutonomyStore(path, logger)
			Expect(err).NotTo(HaveOccurred())
			defer store.Close()

			cfg := store.Get()
			Expect(cfg.Mode).To(Equal(ModeApproval))
			Expect(cfg.ConfidenceThreshold).To(Equal(0.95))
			Expect(cfg.DryRunMode).To(BeTrue())
		})

		It("rejects a non-numeric CONFIDENCE_THRESHOLD", func() {
			os.Setenv("CONFIDENCE_THRESHOLD", "not-a-number")
			_, err := NewAutonomyStore(path, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ApprovalRequiredForRisk", func() {
		It("reports true only for risk levels in ApprovalRequiredFor", func() {
			cfg := DefaultAutonomyConfig()
			Expect(cfg.ApprovalRequiredForRisk(RiskMedium)).To(BeTrue())
			Expect(cfg.ApprovalRequiredForRisk(RiskHigh)).To(BeTrue())
			Expect(cfg.ApprovalRequiredForRisk(RiskLow)).To(BeFalse())
		})
	})
})
