package sse_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatchain/pkg/sse"
)

var _ = Describe("LineFramer", func() {
	var f *sse.LineFramer

	BeforeEach(func() {
		f = sse.NewLineFramer()
	})

	It("emits complete lines and keeps the trailing fragment", func() {
		Expect(f.Feed("one\ntwo\nthr")).To(Equal([]string{"one", "two"}))
		Expect(f.Remainder()).To(Equal("thr"))
	})

	It("completes a fragment with the next chunk", func() {
		Expect(f.Feed("da")).To(BeEmpty())
		Expect(f.Feed("ta: x\n")).To(Equal([]string{"data: x"}))
		Expect(f.Remainder()).To(BeEmpty())
	})

	It("emits empty lines for blank event separators", func() {
		Expect(f.Feed("data: a\n\ndata: b\n\n")).To(Equal([]string{"data: a", "", "data: b", ""}))
	})

	It("keeps carriage returns for the parser to trim", func() {
		Expect(f.Feed("data: a\r\n")).To(Equal([]string{"data: a\r"}))
	})

	It("returns nothing for empty input", func() {
		Expect(f.Feed("")).To(BeNil())
	})

	It("discards an unterminated trailing line", func() {
		f.Feed("data: partial")
		Expect(f.Discard()).To(Equal("data: partial"))
		Expect(f.Remainder()).To(BeEmpty())
	})

	It("resets the fragment", func() {
		f.Feed("abc")
		f.Reset()
		Expect(f.Feed("def\n")).To(Equal([]string{"def"}))
	})

	Describe("split invariance", func() {
		text := "data: {\"a\":1}\n\n: keep-alive\ndata: 你好\ndata: [DONE]\ntrailing"

		It("matches splitting the full text at once for every pair of cut points", func() {
			whole := strings.Split(text, "\n")
			wantLines := whole[:len(whole)-1]
			wantRemainder := whole[len(whole)-1]

			for i := 0; i <= len(text); i++ {
				for j := i; j <= len(text); j++ {
					fr := sse.NewLineFramer()
					var lines []string
					lines = append(lines, fr.Feed(text[:i])...)
					lines = append(lines, fr.Feed(text[i:j])...)
					lines = append(lines, fr.Feed(text[j:])...)

					Expect(lines).To(Equal(wantLines), "cuts at %d and %d", i, j)
					Expect(fr.Remainder()).To(Equal(wantRemainder))
					Expect(strings.Join(append(lines, fr.Remainder()), "\n")).To(Equal(text))
				}
			}
		})
	})
})
