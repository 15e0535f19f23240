package events

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buffer", Ordered, func() {
	Context("buffer", func() {
		It("add successfully", func() {
			buffer := newBuffer()

			buffer.PushBack(&message{Kind: CalculationCompletedKind, Data: []byte("msg1")})
			Expect(buffer.Size()).To(Equal(1))
			Expect(buffer.head).NotTo(BeNil())
			Expect(buffer.tail).NotTo(BeNil())

			buffer.PushBack(&message{Kind: CalculationCompletedKind, Data: []byte("msg2")})
			buffer.PushBack(&message{Kind: CalculationFailedKind, Data: []byte("msg3")})
			Expect(buffer.Size()).To(Equal(3))
			Expect(buffer.head.Data).To(Equal([]byte("msg1")))
			Expect(buffer.tail.Data).To(Equal([]byte("msg3")))
		})

		It("pop in insertion order", func() {
			buffer := newBuffer()
			for _, d := range []string{"msg1", "msg2", "msg3"} {
				buffer.PushBack(&message{Kind: CalculationCompletedKind, Data: []byte(d)})
			}

			for _, d := range []string{"msg1", "msg2", "msg3"} {
				m := buffer.Pop()
				Expect(m).NotTo(BeNil())
				Expect(m.Data).To(Equal([]byte(d)))
			}
			Expect(buffer.Size()).To(Equal(0))
			Expect(buffer.head).To(BeNil())
			Expect(buffer.tail).To(BeNil())
			Expect(buffer.Pop()).To(BeNil())
		})
	})
})
