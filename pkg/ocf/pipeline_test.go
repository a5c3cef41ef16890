package ocf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

func translate(t *testing.T, p *Pipeline, opts PipelineOptions) *Result {
	t.Helper()
	result, err := p.Translate(context.Background(), fixtureRecords(), opts)
	require.NoError(t, err)
	return result
}

func TestPipelineOptions_Globals(t *testing.T) {
	freezeTime(t)

	g := PipelineOptions{}.Globals()
	assert.Equal(t, "2023-03-01", g[FormationDateVariable])
	assert.Equal(t, "USD", g[CurrencyVariable])
	assert.Equal(t, "4(a)2", g[SecExemptionVariable])

	g = PipelineOptions{
		FormationDate:   time.Date(2021, 6, 30, 23, 0, 0, 0, time.UTC),
		Currency:        "EUR",
		GlobalOverrides: map[string]interface{}{SecExemptionVariable: "Reg D", "Extra": "x"},
	}.Globals()
	assert.Equal(t, "2021-06-30", g[FormationDateVariable])
	assert.Equal(t, "EUR", g[CurrencyVariable])
	assert.Equal(t, "Reg D", g[SecExemptionVariable])
	assert.Equal(t, "x", g["Extra"])
}

func TestPipeline_Translate(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		p := NewPipeline(WithConcurrency(concurrency))
		result := translate(t, p, PipelineOptions{FormationDate: time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)})

		assert.Equal(t, "Acme Robotics, Inc.", result.Issuer["legal_name"])
		assert.Equal(t, "2022-01-15", result.Issuer["formation_date"])

		assert.Equal(t, FileStockLegends, result.StockLegends.FileType)
		require.Len(t, result.StockLegends.Items, 2)
		assert.Equal(t, "FFPREFERRED.legend", result.StockLegends.Items[0].(map[string]interface{})["id"])
		assert.Equal(t, "COMMON.legend", result.StockLegends.Items[1].(map[string]interface{})["id"])

		require.Len(t, result.StockClasses.Items, 2)
		assert.Equal(t, "FFPREFERRED", result.StockClasses.Items[0].(map[string]interface{})["id"])
		assert.Equal(t, "COMMON", result.StockClasses.Items[1].(map[string]interface{})["id"])

		require.Len(t, result.StockPlans.Items, 1)
		assert.Len(t, result.Stakeholders.Items, 2)

		require.Len(t, result.Transactions.Items, 4)
		assert.Equal(t, "COMMON.ISSUANCE.1", result.Transactions.Items[0].(map[string]interface{})["security_id"])
		assert.Equal(t, "COMMON.ISSUANCE.2", result.Transactions.Items[1].(map[string]interface{})["security_id"])
		assert.Equal(t, "FFPREFERRED.ISSUANCE.1", result.Transactions.Items[2].(map[string]interface{})["security_id"])
		start, ok := result.Transactions.Items[3].(vesting.StartEvent)
		require.True(t, ok, "last transaction is the vesting start")
		assert.Equal(t, "COMMON.ISSUANCE.1", start.SecurityID)

		require.Len(t, result.VestingTerms.Items, 1)
		assert.Equal(t, FileValuations, result.Valuations.FileType)
		assert.Empty(t, result.Valuations.Items)
	}
}

func TestPipeline_DocumentOptions(t *testing.T) {
	shout := func(value interface{}, _ record.Records) (interface{}, error) {
		return "ACME ROBOTICS", nil
	}
	opts := PipelineOptions{
		Currency: "CAD",
		Documents: map[Document]DocumentOptions{
			DocIssuer: {
				PostProcessors: datamap.NewRegistry().For(TypeIssuer).Register("legal_name", shout).Registry(),
			},
			DocCommonStockClass: {
				Overrides: map[string]interface{}{"SharesAuthorized": "42"},
			},
		},
	}
	result := translate(t, NewPipeline(), opts)

	assert.Equal(t, "ACME ROBOTICS", result.Issuer["legal_name"])
	common := result.StockClasses.Items[1].(map[string]interface{})
	assert.Equal(t, "42", common["initial_shares_authorized"])
	assert.Equal(t, "CAD", common["price_per_share"].(map[string]interface{})["currency"])

	preferred := result.StockClasses.Items[0].(map[string]interface{})
	assert.Equal(t, "2000000", preferred["initial_shares_authorized"])
}

func TestPipeline_FailureCancels(t *testing.T) {
	holders := []stockholder{defaultStockholders[0]}
	holders[0].Vesting = "Custom"

	p := NewPipeline()
	_, err := p.Translate(context.Background(), fixtureRecords(holders...), PipelineOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(DocVestingSchedules))
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline().Translate(ctx, fixtureRecords(), PipelineOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	p := NewPipeline(WithTracer(provider.Tracer("test")), WithConcurrency(2))
	translate(t, p, PipelineOptions{})

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["ocf.Translate"])
	assert.Equal(t, len(Documents), names["ocf.parse"])
}
