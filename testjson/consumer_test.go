package testjson

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/perfgo/testpulse/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const module = "example.com/app"

func consume(t *testing.T, lines ...string) ([]model.TestCompletion, int) {
	t.Helper()
	var got []model.TestCompletion
	malformed, err := NewConsumer(zerolog.Nop(), module).Consume(
		context.Background(),
		strings.NewReader(strings.Join(lines, "\n")+"\n"),
		func(c model.TestCompletion) { got = append(got, c) },
	)
	require.NoError(t, err)
	return got, malformed
}

func TestConsume_Statuses(t *testing.T) {
	got, malformed := consume(t,
		`{"Action":"start","Package":"example.com/app/store"}`,
		`{"Action":"run","Package":"example.com/app/store","Test":"TestGet"}`,
		`{"Action":"output","Package":"example.com/app/store","Test":"TestGet","Output":"=== RUN   TestGet\n"}`,
		`{"Action":"pass","Package":"example.com/app/store","Test":"TestGet","Elapsed":1.5}`,
		`{"Action":"run","Package":"example.com/app/store","Test":"TestSkip"}`,
		`{"Action":"skip","Package":"example.com/app/store","Test":"TestSkip","Elapsed":0}`,
		`{"Action":"run","Package":"example.com/app/store","Test":"TestPut"}`,
		`{"Action":"output","Package":"example.com/app/store","Test":"TestPut","Output":"=== RUN   TestPut\n"}`,
		`{"Action":"output","Package":"example.com/app/store","Test":"TestPut","Output":"    store_test.go:42: expected 3, got 4\n"}`,
		`{"Action":"output","Package":"example.com/app/store","Test":"TestPut","Output":"--- FAIL: TestPut (0.25s)\n"}`,
		`{"Action":"fail","Package":"example.com/app/store","Test":"TestPut","Elapsed":0.25}`,
		`{"Action":"fail","Package":"example.com/app/store","Elapsed":2}`,
	)

	require.Equal(t, 0, malformed)
	require.Len(t, got, 3)

	require.Equal(t, "store", got[0].File)
	require.Equal(t, "TestGet", got[0].Title)
	require.Equal(t, model.StatusPassed, got[0].Status)
	require.Equal(t, 1500*time.Millisecond, got[0].Duration)
	require.Equal(t, "example.com/app/store", got[0].Package)
	require.Empty(t, got[0].ErrorMessage)

	require.Equal(t, model.StatusSkipped, got[1].Status)

	require.Equal(t, model.StatusFailed, got[2].Status)
	require.Equal(t, "store_test.go:42: expected 3, got 4", got[2].ErrorMessage)
	require.Equal(t, "    store_test.go:42: expected 3, got 4", got[2].ErrorStack)
	require.Equal(t, 250*time.Millisecond, got[2].Duration)
}

func TestConsume_TestifyMessage(t *testing.T) {
	got, _ := consume(t,
		`{"Action":"run","Package":"example.com/app","Test":"TestX"}`,
		`{"Action":"output","Package":"example.com/app","Test":"TestX","Output":"    x_test.go:12: \n"}`,
		`{"Action":"output","Package":"example.com/app","Test":"TestX","Output":"        \tError Trace:\t/src/x_test.go:12\n"}`,
		`{"Action":"output","Package":"example.com/app","Test":"TestX","Output":"        \tError:      \tShould be true\n"}`,
		`{"Action":"fail","Package":"example.com/app","Test":"TestX","Elapsed":0}`,
	)

	require.Len(t, got, 1)
	require.Equal(t, ".", got[0].File)
	require.Equal(t, "x_test.go:12: Should be true", got[0].ErrorMessage)
	require.Contains(t, got[0].ErrorStack, "Error Trace:")
}

func TestConsume_FailureWithoutOutput(t *testing.T) {
	got, _ := consume(t,
		`{"Action":"run","Package":"example.com/app","Test":"TestX"}`,
		`{"Action":"fail","Package":"example.com/app","Test":"TestX","Elapsed":0}`,
	)

	require.Len(t, got, 1)
	require.Equal(t, "test failed", got[0].ErrorMessage)
}

func TestConsume_Timeout(t *testing.T) {
	got, _ := consume(t,
		`{"Time":"2026-03-01T10:00:00Z","Action":"run","Package":"example.com/app/slow","Test":"TestFast"}`,
		`{"Action":"pass","Package":"example.com/app/slow","Test":"TestFast","Elapsed":0.1}`,
		`{"Time":"2026-03-01T10:00:00Z","Action":"run","Package":"example.com/app/slow","Test":"TestHang"}`,
		`{"Action":"output","Package":"example.com/app/slow","Output":"panic: test timed out after 2s\n"}`,
		`{"Action":"output","Package":"example.com/app/slow","Output":"\trunning tests:\n"}`,
		`{"Time":"2026-03-01T10:00:02Z","Action":"fail","Package":"example.com/app/slow","Elapsed":2}`,
	)

	require.Len(t, got, 2)
	require.Equal(t, model.StatusPassed, got[0].Status)

	require.Equal(t, "TestHang", got[1].Title)
	require.Equal(t, model.StatusTimedOut, got[1].Status)
	require.Equal(t, "panic: test timed out after 2s", got[1].ErrorMessage)
	require.Equal(t, 2*time.Second, got[1].Duration)
	require.Contains(t, got[1].ErrorStack, "running tests:")
}

func TestConsume_FailAfterTimeoutIsTimedOut(t *testing.T) {
	got, _ := consume(t,
		`{"Action":"run","Package":"example.com/app","Test":"TestHang"}`,
		`{"Action":"output","Package":"example.com/app","Test":"TestHang","Output":"panic: test timed out after 1s\n"}`,
		`{"Action":"fail","Package":"example.com/app","Test":"TestHang","Elapsed":1}`,
		`{"Action":"fail","Package":"example.com/app","Elapsed":1}`,
	)

	require.Len(t, got, 1)
	require.Equal(t, model.StatusTimedOut, got[0].Status)
}

func TestConsume_Interrupted(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{
			name: "package failed",
			lines: []string{
				`{"Action":"run","Package":"example.com/app","Test":"TestCrash"}`,
				`{"Action":"output","Package":"example.com/app","Output":"exit status 2\n"}`,
				`{"Action":"fail","Package":"example.com/app","Elapsed":0.3}`,
			},
		},
		{
			name: "stream ended",
			lines: []string{
				`{"Action":"run","Package":"example.com/app","Test":"TestCrash"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := consume(t, tt.lines...)
			require.Len(t, got, 1)
			require.Equal(t, "TestCrash", got[0].Title)
			require.Equal(t, model.StatusInterrupted, got[0].Status)
			require.Empty(t, got[0].ErrorMessage)
		})
	}
}

func TestConsume_RepeatedRunsCountRetries(t *testing.T) {
	got, _ := consume(t,
		`{"Action":"run","Package":"example.com/app","Test":"TestFlaky"}`,
		`{"Action":"fail","Package":"example.com/app","Test":"TestFlaky","Elapsed":0.01}`,
		`{"Action":"run","Package":"example.com/app","Test":"TestFlaky"}`,
		`{"Action":"pass","Package":"example.com/app","Test":"TestFlaky","Elapsed":0.01}`,
		`{"Action":"run","Package":"example.com/app","Test":"TestFlaky"}`,
		`{"Action":"pass","Package":"example.com/app","Test":"TestFlaky","Elapsed":0.01}`,
	)

	require.Len(t, got, 3)
	for i, c := range got {
		require.Equal(t, i, c.Retry)
	}
	require.Equal(t, model.StatusFailed, got[0].Status)
	require.Equal(t, model.StatusPassed, got[2].Status)
}

func TestConsume_Subtests(t *testing.T) {
	got, _ := consume(t,
		`{"Action":"run","Package":"example.com/app/a","Test":"TestTable"}`,
		`{"Action":"run","Package":"example.com/app/a","Test":"TestTable/case_one"}`,
		`{"Action":"pass","Package":"example.com/app/a","Test":"TestTable/case_one","Elapsed":0}`,
		`{"Action":"pass","Package":"example.com/app/a","Test":"TestTable","Elapsed":0}`,
	)

	require.Len(t, got, 2)
	require.Equal(t, "TestTable/case_one", got[0].Title)
	require.Equal(t, "a", got[0].File)
	require.Equal(t, model.NewTestID(module, "example.com/app/a", "TestTable/case_one"),
		model.NewTestID("", got[0].File, got[0].Title))
}

func TestConsume_SkipsMalformedLines(t *testing.T) {
	got, malformed := consume(t,
		`not json`,
		`{"Action":"run","Package":"example.com/app","Test":"TestA"}`,
		`{"Action":`,
		`{"Action":"pass","Package":"example.com/app","Test":"TestA","Elapsed":0}`,
	)

	require.Equal(t, 2, malformed)
	require.Len(t, got, 1)
}

func TestConsume_ForeignModule(t *testing.T) {
	got, _ := consume(t,
		`{"Action":"run","Package":"other.org/lib","Test":"TestA"}`,
		`{"Action":"pass","Package":"other.org/lib","Test":"TestA","Elapsed":0}`,
	)

	require.Len(t, got, 1)
	require.Equal(t, "other.org/lib", got[0].File)
}

// blockingReader never returns from Read until closed.
type blockingReader struct {
	closed chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.EOF
}

func (b *blockingReader) Close() error {
	close(b.closed)
	return nil
}

func TestConsume_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := &blockingReader{closed: make(chan struct{})}
	_, err := NewConsumer(zerolog.Nop(), module).Consume(ctx, r, func(model.TestCompletion) {})

	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
