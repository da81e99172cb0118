package validation

import (
	"strings"
	"testing"
)

func BenchmarkDetectTraversal_Clean(b *testing.B) {
	v := mustValidator(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.DetectTraversal("uploads/2024/report.pdf")
	}
}

func BenchmarkDetectTraversal_Encoded(b *testing.B) {
	v := mustValidator(b)
	raw := encodeLayers("../../etc/passwd", DefaultMaxDecodePasses)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.DetectTraversal(raw)
	}
}

func BenchmarkSanitizePath_DeepPath(b *testing.B) {
	v := mustValidator(b, WithPlatform(PlatformUnix), WithBaseDir("/srv/data"))
	raw := strings.Repeat("dir name/", 32) + "file (1).txt"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.SanitizePath(raw, Unlimited)
	}
}

func BenchmarkValidatePath(b *testing.B) {
	v := mustValidator(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.ValidatePath("/safe/path/to/file.txt", Unlimited)
	}
}

func BenchmarkSanitizeFilename(b *testing.B) {
	v := mustValidator(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.SanitizeFilename("script<script>alert(1)<script>.js", MaxFilenameLength)
	}
}

func BenchmarkSanitizePath_Parallel(b *testing.B) {
	v := mustValidator(b)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = v.SanitizePath("a/b/c.txt", Unlimited)
		}
	})
}
