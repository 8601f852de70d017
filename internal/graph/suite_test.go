package graph_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestGraphScenarios(t *testing.T) {
	RegisterFailHandler(Fail)

	suiteConfig, reporterConfig := GinkgoConfiguration()
	suiteConfig.Timeout = 2 * time.Minute
	reporterConfig.Succinct = true

	RunSpecs(t, "Resource Graph Scenario Suite", suiteConfig, reporterConfig)
}
