package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pool_data/internal/models"
	"pool_data/internal/storage"
)

// poolServer 按接口路径返回各类别的记录数，0 表示返回空数组
func poolServer(t *testing.T, counts map[string]int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		require.Len(t, parts, 4) // hs/pool/{endpoint}/{date}

		n := counts[parts[2]]
		records := make([]string, 0, n)
		for i := 0; i < n; i++ {
			records = append(records, fmt.Sprintf(`{"dm":"%06d","mc":"测试%d"}`, i, i))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", strings.Join(records, ","))
	}))
}

func newTestRefetcher(t *testing.T, baseURL string) (*Refetcher, *storage.SnapshotStore, *storage.MarkerStore) {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, "history")
	logger := zap.NewNop()

	store := storage.NewSnapshotStore(dataDir, logger)
	require.NoError(t, store.EnsureDirs())
	markers := storage.NewMarkerStore(storage.MarkerPathFor(dataDir), logger)
	checker := NewChecker(store, markers, logger)
	client := newTestClient(baseURL, "test_token")

	refetcher := NewRefetcher(client, store, checker, markers, time.Millisecond, logger)
	refetcher.SetOutput(io.Discard)
	return refetcher, store, markers
}

// TestRefetch_AllCategoriesRecovered 测试三个类别都取到数据时日期判定成功
func TestRefetch_AllCategoriesRecovered(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 30, "dtgc": 5, "zbgc": 10})
	defer server.Close()

	refetcher, store, _ := newTestRefetcher(t, server.URL)

	result, err := refetcher.Refetch(context.Background(), []string{"2024-05-01"}, ConfirmNo)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-05-01"}, result.Succeeded)
	assert.Empty(t, result.StillFailed)

	// 快照已落盘
	snapshot, err := store.Read(models.CategoryLimitUp, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 30, snapshot.Count)
}

// TestRefetch_AnyZeroFails 测试任一类别为0即判定日期仍失败
func TestRefetch_AnyZeroFails(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 30, "dtgc": 0, "zbgc": 10})
	defer server.Close()

	refetcher, store, _ := newTestRefetcher(t, server.URL)

	result, err := refetcher.Refetch(context.Background(), []string{"2024-05-01"}, ConfirmNo)
	require.NoError(t, err)

	assert.Empty(t, result.Succeeded)
	assert.Equal(t, []string{"2024-05-01"}, result.StillFailed)

	// 非空类别的快照仍然写入
	snapshot, err := store.Read(models.CategoryLimitUp, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 30, snapshot.Count)

	// 空类别没有文件
	_, err = store.Read(models.CategoryLimitDown, "2024-05-01")
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
}

// TestRefetch_ReasonsFromDisk 测试失败原因按重取后的文件状态组合描述
func TestRefetch_ReasonsFromDisk(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 0, "dtgc": 0, "zbgc": 10})
	defer server.Close()

	refetcher, _, _ := newTestRefetcher(t, server.URL)

	result, err := refetcher.Refetch(context.Background(), []string{"2024-05-01"}, ConfirmNo)
	require.NoError(t, err)

	require.Contains(t, result.Reasons, "2024-05-01")
	assert.Equal(t, "涨停文件缺失 | 跌停文件缺失", result.Reasons["2024-05-01"])
}

// TestRefetch_ConfirmWritesMarkers 测试确认后失败日期写入跳过清单
func TestRefetch_ConfirmWritesMarkers(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 0, "dtgc": 0, "zbgc": 0})
	defer server.Close()

	refetcher, _, markers := newTestRefetcher(t, server.URL)

	_, err := refetcher.Refetch(context.Background(), []string{"2024-05-01", "2024-05-02"}, ConfirmYes)
	require.NoError(t, err)

	saved := markers.Load()
	require.Len(t, saved, 2)
	assert.Contains(t, saved["2024-05-01"], "涨停文件缺失")
}

// TestRefetch_DeclineSkipsMarkers 测试拒绝确认后不写跳过清单
func TestRefetch_DeclineSkipsMarkers(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 0, "dtgc": 0, "zbgc": 0})
	defer server.Close()

	refetcher, _, markers := newTestRefetcher(t, server.URL)

	_, err := refetcher.Refetch(context.Background(), []string{"2024-05-01"}, ConfirmNo)
	require.NoError(t, err)

	assert.Empty(t, markers.Load())
}

// TestRefetch_AllSucceededSkipsConfirm 测试全部成功时不触发确认
func TestRefetch_AllSucceededSkipsConfirm(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 1, "dtgc": 1, "zbgc": 1})
	defer server.Close()

	refetcher, _, _ := newTestRefetcher(t, server.URL)

	confirmed := false
	_, err := refetcher.Refetch(context.Background(), []string{"2024-05-01"}, func(string) bool {
		confirmed = true
		return true
	})
	require.NoError(t, err)
	assert.False(t, confirmed)
}

// TestRefetch_ZeroCountFileOnDisk 测试重取前已有的 count=0 文件在原因描述中体现为"为0"
func TestRefetch_ZeroCountFileOnDisk(t *testing.T) {
	server := poolServer(t, map[string]int{"ztgc": 0, "dtgc": 5, "zbgc": 3})
	defer server.Close()

	refetcher, store, _ := newTestRefetcher(t, server.URL)
	require.NoError(t, store.Write(models.CategoryLimitUp, "2024-05-01", nil))

	result, err := refetcher.Refetch(context.Background(), []string{"2024-05-01"}, ConfirmNo)
	require.NoError(t, err)

	assert.Equal(t, "涨停为0", result.Reasons["2024-05-01"])
}
