package conversation

const (
	msgChooseAction        = "🔄 Выберите действие:"
	msgRequestContact      = "📲 Отправьте ваш контакт для регистрации."
	msgNotRegistered       = "❌ Вы не зарегистрированы. Поделитесь контактом, чтобы продолжить."
	msgForeignContact      = "❌ Отправьте, пожалуйста, свой собственный контакт."
	msgRegistrationSuccess = "✅ Регистрация успешна!"

	msgEnterTitle       = "📋 Введите заголовок задачи:"
	msgTitleEmpty       = "❌ Заголовок не может быть пустым. Повторите ввод:"
	msgEnterDescription = "📝 Введите описание задачи (или отправьте /skip):"
	msgAskAttachments   = "📎 Прикрепите фото или нажмите 📤 Создать задачу:"
	msgFilesUploaded    = "📎 Загружено файлов: %d. Добавьте ещё или нажмите 📤 Создать задачу."
	msgFileTooLarge     = "❌ Файл слишком большой. Максимальный размер — %d МБ."
	msgFileUploadFailed = "❌ Не удалось загрузить файл. Попробуйте ещё раз…"
	msgAlbumTooLarge    = "❌ В альбоме есть файл больше %d МБ. Альбом не загружен, отправьте его снова без этого файла."
	msgAlbumFailed      = "❌ Не удалось загрузить одно из фото. Отправьте альбом снова."

	msgIssueCreated       = "✅ Задача <a href=\"%s\">%s</a> успешно создана!\n<b>Наименование:</b> %s"
	msgIssueCreationError = "❌ Ошибка при создании задачи. Попробуйте позже."

	msgCommentPrompt   = "📝 Напишите комментарий или прикрепите файл…"
	msgCommentAdded    = "✅ Комментарий добавлен к задаче - <a href=\"%s\">%s</a>"
	msgCommentFailed   = "❌ Не удалось добавить комментарий. Попробуйте ещё раз."
	msgNoIssueSelected = "❌ Сначала выберите задачу в списке."
	msgAttachmentStub  = "📎 Вложение"
	msgCommentOneFile  = "ℹ️ К комментарию прикрепляется только один файл. Остальные файлы альбома не отправлены."

	msgNoIssues     = "📭 У вас нет задач."
	msgIssuesList   = "📂 Ваши задачи:"
	msgTrackerError = "⚠️ Трекер временно недоступен. Попробуйте ещё раз позже."
	msgTooFast      = "⏳ Подождите несколько секунд и попробуйте снова."

	msgUserInfo = "👤 <b>Ваши данные:</b>\nИмя: %s\nТелефон: %s\nTelegram: %s\nЗадач создано: %d"

	unknownPhone    = "неизвестно"
	unknownUsername = "без username"
)
